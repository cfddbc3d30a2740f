// Package hooktest provides a Patcher that touches no memory, for testing
// code built on hook.Manager.
package hooktest

import (
	"fmt"
	"sync"

	"github.com/sliverarmory/rosaserver/hook"
)

// Patcher records patches instead of writing them. The trampoline it hands
// out is the target itself, so calling the "original" calls the target.
type Patcher struct {
	mu       sync.Mutex
	active   map[uintptr]uintptr
	FailWith error
}

func NewPatcher() *Patcher {
	return &Patcher{active: map[uintptr]uintptr{}}
}

func (p *Patcher) Patch(target, replacement uintptr) (*hook.Patch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailWith != nil {
		return nil, p.FailWith
	}
	if _, ok := p.active[target]; ok {
		return nil, fmt.Errorf("hooktest: %#x patched twice", target)
	}
	p.active[target] = replacement
	return &hook.Patch{Target: target, Replacement: replacement, Trampoline: target}, nil
}

func (p *Patcher) Restore(patch *hook.Patch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[patch.Target]; !ok {
		return fmt.Errorf("hooktest: %#x not patched", patch.Target)
	}
	delete(p.active, patch.Target)
	return nil
}

// Redirect returns where calls to target currently go.
func (p *Patcher) Redirect(target uintptr) (uintptr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	to, ok := p.active[target]
	return to, ok
}

// Patched is the number of live patches.
func (p *Patcher) Patched() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
