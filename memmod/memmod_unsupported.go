//go:build !linux

package memmod

import "errors"

var errUnsupported = errors.New("memmod is only supported on linux")

func PageSize() uintptr {
	return 4096
}

func Pry(addr uintptr, numPages int) (uintptr, error) {
	_, _ = addr, numPages
	return 0, errUnsupported
}

func Protect(addr, length uintptr, prot int) error {
	_, _, _ = addr, length, prot
	return errUnsupported
}

func ResolveBase() (uintptr, error) {
	return 0, errUnsupported
}
