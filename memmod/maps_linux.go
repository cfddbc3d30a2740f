//go:build linux

package memmod

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

var (
	baseOnce sync.Once
	baseAddr uintptr
	baseErr  error
)

// ResolveBase returns the load address of the process image: the start of the
// first region listed in /proc/self/maps. It is computed once per process.
func ResolveBase() (uintptr, error) {
	baseOnce.Do(func() {
		baseAddr, baseErr = resolveBase("/proc/self/maps")
	})
	return baseAddr, baseErr
}

func resolveBase(path string) (uintptr, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()
	return ParseBase(f)
}

// ParseBase extracts the start address of the first mapping in a
// /proc/<pid>/maps listing.
func ParseBase(r io.Reader) (uintptr, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		rangeParts := strings.SplitN(fields[0], "-", 2)
		if len(rangeParts) != 2 {
			return 0, fmt.Errorf("malformed maps line %q", line)
		}
		start, err := parseHexUintptr(rangeParts[0])
		if err != nil {
			return 0, err
		}
		if start == 0 {
			return 0, fmt.Errorf("first mapping starts at zero: %q", line)
		}
		return start, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan maps: %w", err)
	}
	return 0, errors.New("no mappings listed")
}

func parseHexUintptr(s string) (uintptr, error) {
	if s == "" {
		return 0, errors.New("empty hex string")
	}
	var out uintptr
	for _, r := range s {
		out <<= 4
		switch {
		case r >= '0' && r <= '9':
			out += uintptr(r - '0')
		case r >= 'a' && r <= 'f':
			out += uintptr(r-'a') + 10
		case r >= 'A' && r <= 'F':
			out += uintptr(r-'A') + 10
		default:
			return 0, fmt.Errorf("invalid hex string %q", s)
		}
	}
	return out, nil
}
