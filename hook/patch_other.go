//go:build !(linux && amd64)

package hook

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("inline patching is only supported on linux/amd64, not " + runtime.GOOS + "/" + runtime.GOARCH)

type inlinePatcher struct{}

func NewInlinePatcher() Patcher {
	return inlinePatcher{}
}

func (inlinePatcher) Patch(target, replacement uintptr) (*Patch, error) {
	return nil, errUnsupported
}

func (inlinePatcher) Restore(p *Patch) error {
	return errUnsupported
}
