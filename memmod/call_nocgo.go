//go:build !(linux && cgo && amd64)

package memmod

const noNativeCalls = "memmod: native calls require linux/amd64 with cgo enabled"

func cCall0(fn uintptr) uintptr {
	panic(noNativeCalls)
}

func cCall1(fn, a0 uintptr) uintptr {
	panic(noNativeCalls)
}

func cCall2(fn, a0, a1 uintptr) uintptr {
	panic(noNativeCalls)
}

func cCall3(fn, a0, a1, a2 uintptr) uintptr {
	panic(noNativeCalls)
}

func cCall6(fn, a0, a1, a2, a3, a4, a5 uintptr) uintptr {
	panic(noNativeCalls)
}

func cCall8(fn uintptr, a [8]uintptr) uintptr {
	panic(noNativeCalls)
}

func cCallFloat(fn uintptr, a [6]uintptr, f [8]float32) uintptr {
	panic(noNativeCalls)
}
