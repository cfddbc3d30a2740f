package entity

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/sliverarmory/rosaserver/memmod"
)

// Vector is three float32 values, either inside host memory or owned by Go.
// A host-backed Vector is a view: reads and writes go to the host struct.
type Vector struct {
	addr  uintptr
	owned *[3]float32
}

func NewVector(x, y, z float32) *Vector {
	return &Vector{owned: &[3]float32{x, y, z}}
}

// VectorAt views the three floats at addr.
func VectorAt(addr uintptr) *Vector {
	return &Vector{addr: addr}
}

// Owned reports whether v lives in Go memory.
func (v *Vector) Owned() bool { return v.owned != nil }

// Addr is the address of the first component. For owned vectors pass it to
// native code only while v is pinned; see Pin.
func (v *Vector) Addr() uintptr {
	if v.owned != nil {
		return uintptr(unsafe.Pointer(&v.owned[0]))
	}
	return v.addr
}

// Pin keeps an owned vector's storage in place for native calls.
func (v *Vector) Pin(p *runtime.Pinner) {
	if v.owned != nil {
		p.Pin(v.owned)
	}
}

func (v *Vector) Get() (x, y, z float32) {
	return v.Component(0), v.Component(1), v.Component(2)
}

func (v *Vector) Set(x, y, z float32) {
	v.SetComponent(0, x)
	v.SetComponent(1, y)
	v.SetComponent(2, z)
}

// Component returns x, y or z for i = 0, 1, 2.
func (v *Vector) Component(i int) float32 {
	if v.owned != nil {
		return v.owned[i]
	}
	return memmod.Read[float32](v.addr + uintptr(i)*4)
}

func (v *Vector) SetComponent(i int, f float32) {
	if v.owned != nil {
		v.owned[i] = f
		return
	}
	memmod.Write(v.addr+uintptr(i)*4, f)
}

// CopyFrom stores o's components into v.
func (v *Vector) CopyFrom(o *Vector) {
	v.Set(o.Get())
}

// Clone returns an owned copy.
func (v *Vector) Clone() *Vector {
	return NewVector(v.Get())
}

func (v *Vector) Add(o *Vector) {
	x, y, z := v.Get()
	ox, oy, oz := o.Get()
	v.Set(x+ox, y+oy, z+oz)
}

func (v *Vector) Scale(s float32) {
	x, y, z := v.Get()
	v.Set(x*s, y*s, z*s)
}

func (v *Vector) DistSquare(o *Vector) float32 {
	x, y, z := v.Get()
	ox, oy, oz := o.Get()
	dx, dy, dz := x-ox, y-oy, z-oz
	return dx*dx + dy*dy + dz*dz
}

func (v *Vector) Dist(o *Vector) float32 {
	return float32(math.Sqrt(float64(v.DistSquare(o))))
}

func (v *Vector) Length() float32 {
	x, y, z := v.Get()
	return float32(math.Sqrt(float64(x*x + y*y + z*z)))
}

func (v *Vector) String() string {
	x, y, z := v.Get()
	return fmt.Sprintf("Vector(%g, %g, %g)", x, y, z)
}

// RotMatrix is a row-major 3x3 float32 rotation, host-backed or owned.
type RotMatrix struct {
	addr  uintptr
	owned *[9]float32
}

func NewRotMatrix(values [9]float32) *RotMatrix {
	m := values
	return &RotMatrix{owned: &m}
}

// RotMatrixAt views the nine floats at addr.
func RotMatrixAt(addr uintptr) *RotMatrix {
	return &RotMatrix{addr: addr}
}

func (m *RotMatrix) Owned() bool { return m.owned != nil }

func (m *RotMatrix) Addr() uintptr {
	if m.owned != nil {
		return uintptr(unsafe.Pointer(&m.owned[0]))
	}
	return m.addr
}

func (m *RotMatrix) Pin(p *runtime.Pinner) {
	if m.owned != nil {
		p.Pin(m.owned)
	}
}

// At returns element i of the row-major layout.
func (m *RotMatrix) At(i int) float32 {
	if m.owned != nil {
		return m.owned[i]
	}
	return memmod.Read[float32](m.addr + uintptr(i)*4)
}

func (m *RotMatrix) SetAt(i int, f float32) {
	if m.owned != nil {
		m.owned[i] = f
		return
	}
	memmod.Write(m.addr+uintptr(i)*4, f)
}

func (m *RotMatrix) Get() [9]float32 {
	var out [9]float32
	for i := range out {
		out[i] = m.At(i)
	}
	return out
}

func (m *RotMatrix) Set(values [9]float32) {
	for i, f := range values {
		m.SetAt(i, f)
	}
}

func (m *RotMatrix) CopyFrom(o *RotMatrix) {
	m.Set(o.Get())
}

func (m *RotMatrix) Clone() *RotMatrix {
	return NewRotMatrix(m.Get())
}

func (m *RotMatrix) String() string {
	v := m.Get()
	return fmt.Sprintf("RotMatrix(%g, %g, %g, %g, %g, %g, %g, %g, %g)", v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7], v[8])
}

// Rotate returns an owned copy of v multiplied by m as a row vector.
func (v *Vector) Rotate(m *RotMatrix) *Vector {
	x, y, z := v.Get()
	e := m.Get()
	return NewVector(
		x*e[0]+y*e[1]+z*e[2],
		x*e[3]+y*e[4]+z*e[5],
		x*e[6]+y*e[7]+z*e[8],
	)
}

// Mul returns the owned product m*o.
func (m *RotMatrix) Mul(o *RotMatrix) *RotMatrix {
	a, b := m.Get(), o.Get()
	var out [9]float32
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			var sum float32
			for k := 0; k < 3; k++ {
				sum += a[row*3+k] * b[k*3+col]
			}
			out[row*3+col] = sum
		}
	}
	return NewRotMatrix(out)
}

// Row returns an owned copy of row i: 0 is right, 1 up, 2 forward.
func (m *RotMatrix) Row(i int) *Vector {
	return NewVector(m.At(i*3), m.At(i*3+1), m.At(i*3+2))
}
