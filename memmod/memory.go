// Package memmod reads and writes absolute addresses inside the current
// process and calls native functions by address.
//
// Every accessor goes straight to memory: there is no copy or cache, so a
// read always reflects what the host last wrote and a write is visible to the
// host immediately. Addresses are trusted; callers that hand in an unmapped or
// protected address fault the process.
package memmod

import (
	"unsafe"
)

// Scalar is the set of fixed-size values that can be read or written at an
// absolute address.
type Scalar interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 |
		~float32 | ~float64 | ~uintptr
}

// Read returns the value of type T stored at addr.
func Read[T Scalar](addr uintptr) T {
	return *(*T)(unsafe.Pointer(addr))
}

// Write stores v at addr.
func Write[T Scalar](addr uintptr, v T) {
	*(*T)(unsafe.Pointer(addr)) = v
}

// ReadBytes copies n bytes starting at addr.
func ReadBytes(addr uintptr, n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
	return out
}

// WriteBytes copies b to addr.
func WriteBytes(addr uintptr, b []byte) {
	if len(b) == 0 {
		return
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(b)), b)
}

// ReadCString reads a NUL-terminated string from a fixed buffer of size bytes.
// A buffer with no terminator yields all size bytes.
func ReadCString(addr uintptr, size int) string {
	if addr == 0 || size <= 0 {
		return ""
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	for i, ch := range buf {
		if ch == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

// WriteCString writes s into a fixed buffer of size bytes, truncating to
// size-1 bytes and always terminating with NUL.
func WriteCString(addr uintptr, size int, s string) {
	if addr == 0 || size <= 0 {
		return
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	n := copy(buf[:size-1], s)
	buf[n] = 0
}

// CStringFromPtr reads a NUL-terminated string of unknown length.
func CStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	const maxLen = 1 << 20
	buf := make([]byte, 0, 64)
	for i := 0; i < maxLen; i++ {
		ch := *(*byte)(unsafe.Pointer(ptr + uintptr(i)))
		if ch == 0 {
			return string(buf)
		}
		buf = append(buf, ch)
	}
	return string(buf)
}

func alignDown(v, a uintptr) uintptr {
	if a == 0 {
		return v
	}
	return v &^ (a - 1)
}

func alignUp(v, a uintptr) uintptr {
	if a == 0 {
		return v
	}
	return (v + (a - 1)) &^ (a - 1)
}
