package entity

import (
	"fmt"
)

// Handle names one slot of a kind. The zero Handle is never live.
type Handle struct {
	kind  *Kind
	index int
}

func (h Handle) Kind() *Kind { return h.kind }

func (h Handle) Index() int { return h.index }

// Live reports whether the slot is currently occupied.
func (h Handle) Live() bool {
	return h.kind != nil && h.kind.Live(h.index)
}

// Addr is the address of the slot's struct.
func (h Handle) Addr() uintptr {
	return h.kind.region.Slot(h.index)
}

func (h Handle) String() string {
	if h.kind == nil {
		return "<nil handle>"
	}
	return fmt.Sprintf("%s(%d)", h.kind.region.Struct, h.index)
}

func (h Handle) kindName() string {
	if h.kind == nil {
		return "nil"
	}
	return h.kind.region.Name
}

// Get reads a field. Integers come back as int64 (uint64 for u64), floats
// as float64, bool, string, *Vector and *RotMatrix views over the slot,
// and ref fields as a Handle or nil.
func (h Handle) Get(name string) (any, error) {
	if !h.Live() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	f, ok := h.kind.region.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidArgument, h.kind.region.Struct, name)
	}
	return h.kind.reg.load(f, h.Addr()+uintptr(f.Offset)), nil
}

// Set writes a field. See Get for the accepted representations.
func (h Handle) Set(name string, value any) error {
	if !h.Live() {
		return fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	f, ok := h.kind.region.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s has no field %q", ErrInvalidArgument, h.kind.region.Struct, name)
	}
	return h.kind.reg.store(f, h.Addr()+uintptr(f.Offset), value)
}

// Remove calls the host delete function for the slot.
func (h Handle) Remove() error {
	if h.kind == nil {
		return fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	return h.kind.Remove(h)
}
