package entity

import (
	"fmt"
	"iter"
	"strings"

	"github.com/sliverarmory/rosaserver/layout"
	"github.com/sliverarmory/rosaserver/memmod"
)

// Kind is one entity array, e.g. humans or vehicles.
type Kind struct {
	reg    *Registry
	region *layout.Region
}

func (k *Kind) Name() string { return k.region.Name }

// Class is the struct type name, e.g. Human.
func (k *Kind) Class() string { return k.region.Struct }

func (k *Kind) Capacity() int { return k.region.Capacity }

func (k *Kind) Fields() []layout.Field { return k.region.Fields }

func (k *Kind) Field(name string) (layout.Field, bool) { return k.region.Field(name) }

// CanCreate reports whether the layout names a host create function.
func (k *Kind) CanCreate() bool { return k.region.CreateFn != 0 }

// CanRemove reports whether the layout names a host delete function.
func (k *Kind) CanRemove() bool { return k.region.RemoveFn != 0 }

// Live reports whether slot i is in range and occupied right now.
func (k *Kind) Live(i int) bool {
	if i < 0 || i >= k.region.Capacity {
		return false
	}
	switch {
	case k.region.Active != nil:
		return memmod.Read[int32](k.region.Slot(i)+uintptr(*k.region.Active)) != 0
	case k.region.Counter != nil:
		return i < k.counter()
	default:
		return true
	}
}

func (k *Kind) counter() int {
	c := k.region.Counter
	n := c.Type.LoadInt(c.Addr)
	if n < 0 {
		return 0
	}
	if n > int64(k.region.Capacity) {
		return k.region.Capacity
	}
	return int(n)
}

// Count is the number of live slots.
func (k *Kind) Count() int {
	switch {
	case k.region.Counter != nil:
		return k.counter()
	case k.region.Active == nil:
		return k.region.Capacity
	}
	n := 0
	for i := 0; i < k.region.Capacity; i++ {
		if k.Live(i) {
			n++
		}
	}
	return n
}

// Get returns a handle to slot i, failing with ErrInvalidHandle when the slot
// is out of range or not live.
func (k *Kind) Get(i int) (Handle, error) {
	if !k.Live(i) {
		return Handle{}, fmt.Errorf("%w: %s[%d]", ErrInvalidHandle, k.region.Name, i)
	}
	return Handle{kind: k, index: i}, nil
}

// Slot returns a handle to slot i without checking liveness. Handles still
// check on every access.
func (k *Kind) Slot(i int) (Handle, bool) {
	if i < 0 || i >= k.region.Capacity {
		return Handle{}, false
	}
	return Handle{kind: k, index: i}, true
}

// All yields live handles in slot order. Liveness is checked as iteration
// reaches each slot.
func (k *Kind) All() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for i := 0; i < k.region.Capacity; i++ {
			if k.region.Counter != nil && i >= k.counter() {
				return
			}
			if !k.Live(i) {
				continue
			}
			if !yield(Handle{kind: k, index: i}) {
				return
			}
		}
	}
}

// Create calls the host's create function for the kind. args are passed
// as machine words; the host returns the new slot index or -1.
func (k *Kind) Create(args ...uintptr) (Handle, error) {
	if k.region.CreateFn == 0 {
		return Handle{}, fmt.Errorf("%w: create %s", ErrUnsupported, k.region.Name)
	}
	idx := memmod.Int32(k.reg.caller.Call(k.region.CreateFn, args...))
	if idx < 0 {
		return Handle{}, fmt.Errorf("%w: create %s returned %d", ErrHostFailed, k.region.Name, idx)
	}
	return k.Get(int(idx))
}

// Remove calls the host's delete function on h.
func (k *Kind) Remove(h Handle) error {
	if h.kind != k {
		return fmt.Errorf("%w: %s handle passed to %s", ErrInvalidArgument, h.kindName(), k.region.Name)
	}
	if !h.Live() {
		return fmt.Errorf("%w: %s[%d]", ErrInvalidHandle, k.region.Name, h.index)
	}
	if k.region.RemoveFn == 0 {
		return fmt.Errorf("%w: remove %s", ErrUnsupported, k.region.Name)
	}
	k.reg.caller.Call(k.region.RemoveFn, memmod.Arg(int32(h.index)))
	return nil
}

// FindInt returns the first live handle whose integer field equals v.
func (k *Kind) FindInt(field string, v int64) (Handle, bool) {
	f, ok := k.region.Field(field)
	if !ok || !f.Type.IsInteger() {
		return Handle{}, false
	}
	for h := range k.All() {
		if f.Type.LoadInt(h.Addr()+uintptr(f.Offset)) == v {
			return h, true
		}
	}
	return Handle{}, false
}

// FindString returns the first live handle whose string field matches s,
// ignoring case.
func (k *Kind) FindString(field, s string) (Handle, bool) {
	f, ok := k.region.Field(field)
	if !ok || f.Type != layout.TypeCString {
		return Handle{}, false
	}
	for h := range k.All() {
		if strings.EqualFold(memmod.ReadCString(h.Addr()+uintptr(f.Offset), f.Size), s) {
			return h, true
		}
	}
	return Handle{}, false
}
