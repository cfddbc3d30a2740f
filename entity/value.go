package entity

import (
	"fmt"
	"math"

	"github.com/sliverarmory/rosaserver/layout"
	"github.com/sliverarmory/rosaserver/memmod"
)

func (r *Registry) load(f layout.Field, addr uintptr) any {
	switch f.Type {
	case layout.TypeBool:
		return memmod.Read[int32](addr) != 0
	case layout.TypeCString:
		return memmod.ReadCString(addr, f.Size)
	case layout.TypeVec3:
		return VectorAt(addr)
	case layout.TypeRot:
		return RotMatrixAt(addr)
	case layout.TypeRef:
		idx := int(memmod.Read[int32](addr))
		target, ok := r.kinds[f.Kind]
		if !ok {
			return nil
		}
		h, ok := target.Slot(idx)
		if !ok {
			return nil
		}
		return h
	case layout.TypeU64:
		return uint64(f.Type.LoadInt(addr))
	}
	if f.Type.IsFloat() {
		return f.Type.LoadFloat(addr)
	}
	return f.Type.LoadInt(addr)
}

func (r *Registry) store(f layout.Field, addr uintptr, value any) error {
	if f.ReadOnly {
		return fmt.Errorf("%w: %s is read-only", ErrInvalidArgument, f.Name)
	}
	bad := func() error {
		return fmt.Errorf("%w: cannot store %T in %s field %s", ErrInvalidArgument, value, f.Type, f.Name)
	}

	switch f.Type {
	case layout.TypeBool:
		b, ok := value.(bool)
		if !ok {
			return bad()
		}
		v := int32(0)
		if b {
			v = 1
		}
		memmod.Write(addr, v)
	case layout.TypeCString:
		s, ok := value.(string)
		if !ok {
			return bad()
		}
		memmod.WriteCString(addr, f.Size, s)
	case layout.TypeVec3:
		v, ok := value.(*Vector)
		if !ok || v == nil {
			return bad()
		}
		VectorAt(addr).CopyFrom(v)
	case layout.TypeRot:
		m, ok := value.(*RotMatrix)
		if !ok || m == nil {
			return bad()
		}
		RotMatrixAt(addr).CopyFrom(m)
	case layout.TypeRef:
		idx, err := r.refIndex(f, value)
		if err != nil {
			return err
		}
		memmod.Write(addr, idx)
	default:
		if f.Type.IsFloat() {
			v, ok := toFloat(value)
			if !ok {
				return bad()
			}
			f.Type.StoreFloat(addr, v)
			return nil
		}
		if u, ok := value.(uint64); ok && f.Type == layout.TypeU64 {
			memmod.Write(addr, u)
			return nil
		}
		v, ok := toInt(value)
		if !ok {
			return bad()
		}
		if !f.Type.Fits(v) {
			return fmt.Errorf("%w: %d out of range for %s field %s", ErrInvalidArgument, v, f.Type, f.Name)
		}
		f.Type.StoreInt(addr, v)
	}
	return nil
}

func (r *Registry) refIndex(f layout.Field, value any) (int32, error) {
	switch v := value.(type) {
	case nil:
		return -1, nil
	case Handle:
		if v.kind == nil || v.kind.region.Name != f.Kind {
			return 0, fmt.Errorf("%w: %s expects a %s handle, got %s", ErrInvalidArgument, f.Name, f.Kind, v.kindName())
		}
		return int32(v.index), nil
	}
	i, ok := toInt(value)
	if !ok || i < -1 || i > math.MaxInt32 {
		return 0, fmt.Errorf("%w: cannot store %v in ref field %s", ErrInvalidArgument, value, f.Name)
	}
	return int32(i), nil
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
