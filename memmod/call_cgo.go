//go:build linux && cgo && amd64

package memmod

/*
#include <stdint.h>

typedef uintptr_t (*rosa_fn0)(void);
typedef uintptr_t (*rosa_fn1)(uintptr_t);
typedef uintptr_t (*rosa_fn2)(uintptr_t, uintptr_t);
typedef uintptr_t (*rosa_fn3)(uintptr_t, uintptr_t, uintptr_t);
typedef uintptr_t (*rosa_fn6)(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
typedef uintptr_t (*rosa_fn8)(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);
typedef uintptr_t (*rosa_fnf)(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t,
	float, float, float, float, float, float, float, float);

static uintptr_t rosa_call0(uintptr_t fn) {
	return ((rosa_fn0)fn)();
}

static uintptr_t rosa_call1(uintptr_t fn, uintptr_t a0) {
	return ((rosa_fn1)fn)(a0);
}

static uintptr_t rosa_call2(uintptr_t fn, uintptr_t a0, uintptr_t a1) {
	return ((rosa_fn2)fn)(a0, a1);
}

static uintptr_t rosa_call3(uintptr_t fn, uintptr_t a0, uintptr_t a1, uintptr_t a2) {
	return ((rosa_fn3)fn)(a0, a1, a2);
}

static uintptr_t rosa_call6(uintptr_t fn,
	uintptr_t a0, uintptr_t a1, uintptr_t a2,
	uintptr_t a3, uintptr_t a4, uintptr_t a5) {
	return ((rosa_fn6)fn)(a0, a1, a2, a3, a4, a5);
}

static uintptr_t rosa_call8(uintptr_t fn, const uintptr_t *a) {
	return ((rosa_fn8)fn)(a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7]);
}

static uintptr_t rosa_callf(uintptr_t fn, const uintptr_t *a, const float *f) {
	return ((rosa_fnf)fn)(a[0], a[1], a[2], a[3], a[4], a[5],
		f[0], f[1], f[2], f[3], f[4], f[5], f[6], f[7]);
}
*/
import "C"

func cCall0(fn uintptr) uintptr {
	return uintptr(C.rosa_call0(C.uintptr_t(fn)))
}

func cCall1(fn, a0 uintptr) uintptr {
	return uintptr(C.rosa_call1(C.uintptr_t(fn), C.uintptr_t(a0)))
}

func cCall2(fn, a0, a1 uintptr) uintptr {
	return uintptr(C.rosa_call2(C.uintptr_t(fn), C.uintptr_t(a0), C.uintptr_t(a1)))
}

func cCall3(fn, a0, a1, a2 uintptr) uintptr {
	return uintptr(C.rosa_call3(C.uintptr_t(fn), C.uintptr_t(a0), C.uintptr_t(a1), C.uintptr_t(a2)))
}

func cCall6(fn, a0, a1, a2, a3, a4, a5 uintptr) uintptr {
	return uintptr(C.rosa_call6(
		C.uintptr_t(fn),
		C.uintptr_t(a0),
		C.uintptr_t(a1),
		C.uintptr_t(a2),
		C.uintptr_t(a3),
		C.uintptr_t(a4),
		C.uintptr_t(a5),
	))
}

func cCall8(fn uintptr, a [8]uintptr) uintptr {
	var c [8]C.uintptr_t
	for i, v := range a {
		c[i] = C.uintptr_t(v)
	}
	return uintptr(C.rosa_call8(C.uintptr_t(fn), &c[0]))
}

func cCallFloat(fn uintptr, a [6]uintptr, f [8]float32) uintptr {
	var c [6]C.uintptr_t
	for i, v := range a {
		c[i] = C.uintptr_t(v)
	}
	var cf [8]C.float
	for i, v := range f {
		cf[i] = C.float(v)
	}
	return uintptr(C.rosa_callf(C.uintptr_t(fn), &c[0], &cf[0]))
}
