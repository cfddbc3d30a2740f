package layout

import (
	"fmt"
	"sort"
)

// Table is a Spec bound to a process image base. Every entry is base+offset;
// the target content is never validated.
type Table struct {
	base    uintptr
	build   string
	globals map[string]*Var
	funcs   map[string]uintptr
	arrays  map[string]*Region
	order   []string

	originals map[string]float64
}

// Var is a resolved global.
type Var struct {
	Global
	Addr uintptr
}

// Region is a resolved entity array.
type Region struct {
	Array
	Addr     uintptr
	Fields   []Field
	Counter  *Var
	CreateFn uintptr
	RemoveFn uintptr

	byName map[string]Field
}

// Slot returns the address of slot i. i is not range checked.
func (r *Region) Slot(i int) uintptr {
	return r.Addr + uintptr(i)*uintptr(r.Stride)
}

// Field looks up a struct member by name.
func (r *Region) Field(name string) (Field, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// Fixed reports whether every slot of the array is always live.
func (r *Region) Fixed() bool {
	return r.Active == nil && r.Counter == nil
}

// Resolve binds s to base.
func (s *Spec) Resolve(base uintptr) *Table {
	t := &Table{
		base:      base,
		build:     s.Build,
		globals:   make(map[string]*Var, len(s.Globals)),
		funcs:     make(map[string]uintptr, len(s.Functions)),
		arrays:    make(map[string]*Region, len(s.Arrays)),
		originals: map[string]float64{},
	}
	for _, g := range s.Globals {
		t.globals[g.Name] = &Var{Global: g, Addr: base + uintptr(g.Offset)}
	}
	for _, f := range s.Functions {
		t.funcs[f.Name] = base + uintptr(f.Offset)
	}
	for _, a := range s.Arrays {
		fields := append([]Field(nil), s.Structs[a.Struct]...)
		r := &Region{
			Array:  a,
			Addr:   base + uintptr(a.Offset),
			Fields: fields,
			byName: make(map[string]Field, len(fields)),
		}
		for _, f := range fields {
			r.byName[f.Name] = f
		}
		if a.Counter != "" {
			r.Counter = t.globals[a.Counter]
		}
		if a.Create != "" {
			r.CreateFn = t.funcs[a.Create]
		}
		if a.Remove != "" {
			r.RemoveFn = t.funcs[a.Remove]
		}
		t.arrays[a.Name] = r
		t.order = append(t.order, a.Name)
	}
	return t
}

// Locate opens every global marked for prying and records its value before
// anything writes to it. pry is usually memmod.Pry; an error from it is
// fatal to the caller.
func (t *Table) Locate(pry func(addr uintptr, pages int) error) error {
	names := make([]string, 0, len(t.globals))
	for name, v := range t.globals {
		if v.Pry > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		v := t.globals[name]
		if err := pry(v.Addr, v.Pry); err != nil {
			return fmt.Errorf("pry %s at %#x: %w", name, v.Addr, err)
		}
		if v.Type.IsInteger() || v.Type.IsFloat() {
			t.originals[name] = v.Type.LoadNumber(v.Addr)
		}
	}
	return nil
}

// Original returns the value a pried global held when Locate ran.
func (t *Table) Original(name string) (float64, bool) {
	v, ok := t.originals[name]
	return v, ok
}

func (t *Table) Base() uintptr { return t.base }

func (t *Table) Build() string { return t.build }

func (t *Table) Global(name string) (*Var, bool) {
	v, ok := t.globals[name]
	return v, ok
}

// Globals returns every global sorted by name.
func (t *Table) Globals() []*Var {
	out := make([]*Var, 0, len(t.globals))
	for _, v := range t.globals {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Table) Func(name string) (uintptr, bool) {
	addr, ok := t.funcs[name]
	return addr, ok
}

// MustFunc is Func for names the embedded layout is known to carry.
func (t *Table) MustFunc(name string) uintptr {
	addr, ok := t.funcs[name]
	if !ok {
		panic(fmt.Sprintf("layout %s: no function %q", t.build, name))
	}
	return addr
}

func (t *Table) Array(name string) (*Region, bool) {
	r, ok := t.arrays[name]
	return r, ok
}

// Arrays returns every array in declaration order.
func (t *Table) Arrays() []*Region {
	out := make([]*Region, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.arrays[name])
	}
	return out
}

// Struct returns the fields of the named struct type.
func (t *Table) Struct(name string) ([]Field, bool) {
	for _, r := range t.Arrays() {
		if r.Struct == name {
			return r.Fields, true
		}
	}
	return nil, false
}
