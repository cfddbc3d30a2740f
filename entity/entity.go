// Package entity exposes the host's fixed entity arrays as index handles.
//
// Nothing is cached: every count, liveness check and field access reads host
// memory at the moment it is called. Slots are only ever allocated and freed
// by the host's own create and delete functions.
package entity

import (
	"errors"
	"fmt"

	"github.com/sliverarmory/rosaserver/layout"
	"github.com/sliverarmory/rosaserver/memmod"
)

var (
	// ErrInvalidHandle means the index is out of range or the slot is not live.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrInvalidArgument means a malformed value or unknown field name.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupported means the kind has no host function for the operation.
	ErrUnsupported = errors.New("operation not supported")
	// ErrHostFailed means a host create function reported failure.
	ErrHostFailed = errors.New("host call failed")
)

// Registry holds one Kind per array in a resolved layout.
type Registry struct {
	table  *layout.Table
	caller memmod.Caller
	kinds  map[string]*Kind
	order  []*Kind
}

// NewRegistry builds kinds for every array in t. caller runs the host's
// create and delete functions.
func NewRegistry(t *layout.Table, caller memmod.Caller) *Registry {
	r := &Registry{
		table:  t,
		caller: caller,
		kinds:  map[string]*Kind{},
	}
	for _, region := range t.Arrays() {
		k := &Kind{reg: r, region: region}
		r.kinds[region.Name] = k
		r.order = append(r.order, k)
	}
	return r
}

func (r *Registry) Table() *layout.Table { return r.table }

// Caller runs host functions on behalf of the registry's kinds.
func (r *Registry) Caller() memmod.Caller { return r.caller }

func (r *Registry) Kind(name string) (*Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// Kinds returns every kind in layout order.
func (r *Registry) Kinds() []*Kind {
	return append([]*Kind(nil), r.order...)
}

// Global reads a layout global.
func (r *Registry) Global(name string) (any, error) {
	v, ok := r.table.Global(name)
	if !ok {
		return nil, fmt.Errorf("%w: no global %q", ErrInvalidArgument, name)
	}
	return r.load(globalField(v), v.Addr), nil
}

// SetGlobal writes a layout global.
func (r *Registry) SetGlobal(name string, value any) error {
	v, ok := r.table.Global(name)
	if !ok {
		return fmt.Errorf("%w: no global %q", ErrInvalidArgument, name)
	}
	return r.store(globalField(v), v.Addr, value)
}

func globalField(v *layout.Var) layout.Field {
	return layout.Field{
		Name:     v.Name,
		Type:     v.Type,
		Size:     v.Size,
		ReadOnly: v.ReadOnly,
	}
}
