package layout

import (
	"math"

	"github.com/sliverarmory/rosaserver/memmod"
)

// Type is the in-memory representation of a global or field.
type Type string

const (
	TypeI8      Type = "i8"
	TypeU8      Type = "u8"
	TypeI16     Type = "i16"
	TypeU16     Type = "u16"
	TypeI32     Type = "i32"
	TypeU32     Type = "u32"
	TypeI64     Type = "i64"
	TypeU64     Type = "u64"
	TypeF32     Type = "f32"
	TypeF64     Type = "f64"
	TypeBool    Type = "bool" // int32, non-zero is true
	TypeCString Type = "cstr" // fixed char array, Size bytes
	TypeVec3    Type = "vec3" // three float32
	TypeRot     Type = "rot"  // 3x3 float32, row major
	TypeRef     Type = "ref"  // int32 index into another array, -1 is none
)

var typeSizes = map[Type]int{
	TypeI8: 1, TypeU8: 1,
	TypeI16: 2, TypeU16: 2,
	TypeI32: 4, TypeU32: 4, TypeF32: 4, TypeBool: 4, TypeRef: 4,
	TypeI64: 8, TypeU64: 8, TypeF64: 8,
	TypeVec3:    12,
	TypeRot:     36,
	TypeCString: 0,
}

func (t Type) valid() bool {
	_, ok := typeSizes[t]
	return ok
}

// Size is the width in bytes; zero for cstr, whose width is per entry.
func (t Type) Size() int {
	return typeSizes[t]
}

// IsInteger reports whether t is loaded with LoadInt.
func (t Type) IsInteger() bool {
	switch t {
	case TypeI8, TypeU8, TypeI16, TypeU16, TypeI32, TypeU32, TypeI64, TypeU64, TypeBool, TypeRef:
		return true
	}
	return false
}

// IsFloat reports whether t is loaded with LoadFloat.
func (t Type) IsFloat() bool {
	return t == TypeF32 || t == TypeF64
}

// LoadInt reads an integer of type t at addr, sign- or zero-extended. u64
// values come back as their bit pattern.
func (t Type) LoadInt(addr uintptr) int64 {
	switch t {
	case TypeI8:
		return int64(memmod.Read[int8](addr))
	case TypeU8:
		return int64(memmod.Read[uint8](addr))
	case TypeI16:
		return int64(memmod.Read[int16](addr))
	case TypeU16:
		return int64(memmod.Read[uint16](addr))
	case TypeI32, TypeBool, TypeRef:
		return int64(memmod.Read[int32](addr))
	case TypeU32:
		return int64(memmod.Read[uint32](addr))
	case TypeI64:
		return memmod.Read[int64](addr)
	case TypeU64:
		return int64(memmod.Read[uint64](addr))
	}
	panic("layout: LoadInt on " + string(t))
}

// Fits reports whether v is representable in an integer of type t. u64
// takes non-negative values only.
func (t Type) Fits(v int64) bool {
	switch t {
	case TypeI8:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case TypeU8:
		return v >= 0 && v <= math.MaxUint8
	case TypeI16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case TypeU16:
		return v >= 0 && v <= math.MaxUint16
	case TypeI32, TypeBool, TypeRef:
		return v >= math.MinInt32 && v <= math.MaxInt32
	case TypeU32:
		return v >= 0 && v <= math.MaxUint32
	case TypeI64:
		return true
	case TypeU64:
		return v >= 0
	}
	return false
}

// StoreInt writes v truncated to the width of t.
func (t Type) StoreInt(addr uintptr, v int64) {
	switch t {
	case TypeI8, TypeU8:
		memmod.Write(addr, uint8(v))
	case TypeI16, TypeU16:
		memmod.Write(addr, uint16(v))
	case TypeI32, TypeU32, TypeBool, TypeRef:
		memmod.Write(addr, uint32(v))
	case TypeI64, TypeU64:
		memmod.Write(addr, uint64(v))
	default:
		panic("layout: StoreInt on " + string(t))
	}
}

// LoadFloat reads a float of type t at addr.
func (t Type) LoadFloat(addr uintptr) float64 {
	switch t {
	case TypeF32:
		return float64(memmod.Read[float32](addr))
	case TypeF64:
		return memmod.Read[float64](addr)
	}
	panic("layout: LoadFloat on " + string(t))
}

// StoreFloat writes v at addr, narrowing to float32 for f32.
func (t Type) StoreFloat(addr uintptr, v float64) {
	switch t {
	case TypeF32:
		memmod.Write(addr, float32(v))
	case TypeF64:
		memmod.Write(addr, v)
	default:
		panic("layout: StoreFloat on " + string(t))
	}
}

// LoadNumber reads any numeric type as a float64. Used for recording
// original values; 64-bit integers above 2^53 lose precision.
func (t Type) LoadNumber(addr uintptr) float64 {
	if t.IsFloat() {
		return t.LoadFloat(addr)
	}
	if t == TypeU64 {
		return float64(uint64(t.LoadInt(addr)))
	}
	if t.IsInteger() {
		return float64(t.LoadInt(addr))
	}
	return math.NaN()
}
