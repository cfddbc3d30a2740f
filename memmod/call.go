package memmod

import "errors"

// Caller invokes native code by address. Arguments are passed as machine
// words in integer registers, so only integer and pointer parameters are
// supported; the result is the raw return register.
type Caller interface {
	Call(fn uintptr, args ...uintptr) uintptr
}

// FloatCaller is a Caller that can also pass float parameters. Integer and
// pointer arguments take the integer registers in order and floats take
// xmm0 through xmm7, which is how the SysV ABI classifies a mixed list.
type FloatCaller interface {
	Caller
	CallFloat(fn uintptr, args []uintptr, floats []float32) uintptr
}

// ErrNoFloatCalls means a Caller cannot pass float parameters.
var ErrNoFloatCalls = errors.New("memmod: caller cannot pass float arguments")

// CallFloat calls fn through c with float parameters.
func CallFloat(c Caller, fn uintptr, args []uintptr, floats []float32) (uintptr, error) {
	fc, ok := c.(FloatCaller)
	if !ok {
		return 0, ErrNoFloatCalls
	}
	return fc.CallFloat(fn, args, floats), nil
}

// Native calls functions in the current process through cgo.
var Native FloatCaller = nativeCaller{}

type nativeCaller struct{}

func (nativeCaller) Call(fn uintptr, args ...uintptr) uintptr {
	var a [8]uintptr
	if len(args) > len(a) {
		panic("memmod: too many native call arguments")
	}
	copy(a[:], args)
	switch len(args) {
	case 0:
		return cCall0(fn)
	case 1:
		return cCall1(fn, a[0])
	case 2:
		return cCall2(fn, a[0], a[1])
	case 3:
		return cCall3(fn, a[0], a[1], a[2])
	case 4, 5, 6:
		return cCall6(fn, a[0], a[1], a[2], a[3], a[4], a[5])
	default:
		return cCall8(fn, a)
	}
}

func (nativeCaller) CallFloat(fn uintptr, args []uintptr, floats []float32) uintptr {
	var a [6]uintptr
	var f [8]float32
	if len(args) > len(a) || len(floats) > len(f) {
		panic("memmod: too many native call arguments")
	}
	copy(a[:], args)
	copy(f[:], floats)
	return cCallFloat(fn, a, f)
}

// Int32 reinterprets a return register holding a C int.
func Int32(ret uintptr) int32 {
	return int32(uint32(ret))
}

// Arg widens a C int argument to a machine word.
func Arg(v int32) uintptr {
	return uintptr(uint32(v))
}
