//go:build linux && amd64

package hook

import (
	"bytes"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sliverarmory/rosaserver/memmod"
)

// nearStep is the spacing between address hints when searching for a
// trampoline page within rel32 reach of a target.
const nearStep = 1 << 20

var protect = memmod.Protect

type inlinePatcher struct{}

// NewInlinePatcher returns a Patcher that overwrites the first instructions
// of a function with an absolute jump.
func NewInlinePatcher() Patcher {
	return inlinePatcher{}
}

func (inlinePatcher) Patch(target, replacement uintptr) (*Patch, error) {
	pro, err := decodePrologue(memmod.ReadBytes(target, maxPrologue), jumpSize)
	if err != nil {
		return nil, err
	}

	size := uintptr(len(pro.code) + jumpSize)
	tramp, err := allocNear(target, size, len(pro.relocs) > 0)
	if err != nil {
		return nil, err
	}
	release := func() { _ = unix.MunmapPtr(unsafe.Pointer(tramp), pageRound(size)) }
	body, err := pro.relocate(target, tramp)
	if err != nil {
		release()
		return nil, err
	}
	memmod.WriteBytes(tramp, body)
	memmod.WriteBytes(tramp+uintptr(len(body)), absJump(target+uintptr(len(body))))
	if err := protect(tramp, size, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		release()
		return nil, fmt.Errorf("seal trampoline: %w", err)
	}

	if err := writeCode(target, entryPatch(replacement, len(pro.code))); err != nil {
		// A jump that made it into the target still leads to the trampoline.
		if bytes.Equal(memmod.ReadBytes(target, len(pro.code)), pro.code) {
			release()
		}
		return nil, err
	}
	return &Patch{
		Target:      target,
		Replacement: replacement,
		Trampoline:  tramp,
		Saved:       pro.code,
	}, nil
}

func (inlinePatcher) Restore(p *Patch) error {
	return writeCode(p.Target, p.Saved)
}

// writeCode stores b over executable memory at addr.
func writeCode(addr uintptr, b []byte) error {
	length := uintptr(len(b))
	if err := protect(addr, length, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("unprotect %#x: %w", addr, err)
	}
	memmod.WriteBytes(addr, b)
	if err := protect(addr, length, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("reprotect %#x: %w", addr, err)
	}
	return nil
}

// allocNear maps one page for a trampoline. When near is set the page must
// sit within rel32 reach of target so relocated operands still fit.
func allocNear(target, size uintptr, near bool) (uintptr, error) {
	length := pageRound(size)
	const prot = unix.PROT_READ | unix.PROT_WRITE
	const flags = unix.MAP_PRIVATE | unix.MAP_ANONYMOUS

	if !near {
		ptr, err := unix.MmapPtr(-1, 0, nil, length, prot, flags)
		if err != nil {
			return 0, fmt.Errorf("map trampoline: %w", err)
		}
		return uintptr(ptr), nil
	}

	const reach = 1<<31 - 1
	origin := target &^ (nearStep - 1)
	for i := uintptr(1); i*nearStep < reach/2; i++ {
		for _, hint := range [2]uintptr{origin - i*nearStep, origin + i*nearStep} {
			if hint > origin+i*nearStep || hint == 0 {
				continue
			}
			ptr, err := unix.MmapPtr(-1, 0, unsafe.Pointer(hint), length, prot, flags)
			if err != nil {
				continue
			}
			addr := uintptr(ptr)
			if within(addr, target, reach-length) {
				return addr, nil
			}
			_ = unix.MunmapPtr(ptr, length)
		}
	}
	return 0, fmt.Errorf("%w: no free page near %#x", ErrOutOfRange, target)
}

func pageRound(n uintptr) uintptr {
	pageSize := memmod.PageSize()
	return (n + pageSize - 1) &^ (pageSize - 1)
}

func within(a, b, dist uintptr) bool {
	if a > b {
		return a-b <= dist
	}
	return b-a <= dist
}
