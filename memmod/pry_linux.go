//go:build linux

package memmod

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	pryMu      sync.Mutex
	priedPages = map[uintptr]struct{}{}
)

// PageSize returns the system page size.
func PageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

// Pry makes numPages pages starting at the page containing addr readable and
// writable. Pages that were already pried are left alone, so repeated calls
// are harmless. The returned page address is the first page of the range.
func Pry(addr uintptr, numPages int) (uintptr, error) {
	if numPages <= 0 {
		numPages = 1
	}
	pageSize := PageSize()
	page := alignDown(addr, pageSize)

	pryMu.Lock()
	defer pryMu.Unlock()

	for i := 0; i < numPages; i++ {
		p := page + uintptr(i)*pageSize
		if _, ok := priedPages[p]; ok {
			continue
		}
		if err := mprotect(p, pageSize, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return page, fmt.Errorf("pry page %#x: %w", p, err)
		}
		priedPages[p] = struct{}{}
	}
	return page, nil
}

// Protect changes the protection of [addr, addr+length) rounded out to whole
// pages. prot takes unix.PROT_* bits. Pried pages in the range must be pried
// again before the next write.
func Protect(addr, length uintptr, prot int) error {
	pageSize := PageSize()
	start := alignDown(addr, pageSize)
	end := alignUp(addr+length, pageSize)
	if end <= start {
		return nil
	}
	if err := mprotect(start, end-start, prot); err != nil {
		return err
	}
	pryMu.Lock()
	defer pryMu.Unlock()
	for p := start; p < end; p += pageSize {
		delete(priedPages, p)
	}
	return nil
}

// mprotect works on page-aligned ranges.
func mprotect(start, size uintptr, prot int) error {
	if size > uintptr(math.MaxInt) {
		return fmt.Errorf("protect %#x: length %d too large", start, size)
	}
	region := unsafe.Slice((*byte)(unsafe.Pointer(start)), int(size))
	return unix.Mprotect(region, prot)
}

// forgetPry drops the idempotence record for the page containing addr. Tests
// use it after unmapping a region whose address may be reused.
func forgetPry(addr uintptr) {
	pryMu.Lock()
	defer pryMu.Unlock()
	delete(priedPages, alignDown(addr, PageSize()))
}
