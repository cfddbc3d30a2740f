// Package hook installs inline interceptors on host functions and tracks
// whether scripts want each one dispatched.
//
// A hook is installed once per process. Resetting the scripting runtime only
// touches the script-enabled flag of each Record; the patched bytes stay.
package hook

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrDoubleHook means the name or target is already hooked.
	ErrDoubleHook = errors.New("double hook")
	// ErrHookNotFound means no hook is installed under the name.
	ErrHookNotFound = errors.New("hook not found")
	// ErrRelativeAddr means the prologue holds a PC-relative operand that
	// cannot be moved into a trampoline.
	ErrRelativeAddr = errors.New("relative address in instruction")
	// ErrPrologueTooShort means the function returns or jumps away before
	// enough bytes for the patch.
	ErrPrologueTooShort = errors.New("prologue too short to patch")
	// ErrOutOfRange means no trampoline could be placed within rel32 reach.
	ErrOutOfRange = errors.New("trampoline out of range")
)

// Record is one installed hook.
type Record struct {
	Name        string
	Target      uintptr
	Interceptor uintptr

	patch      *Patch
	installed  atomic.Bool
	enabled    atomic.Bool
	persistent atomic.Bool
}

// Original is the trampoline that runs the unpatched function.
func (r *Record) Original() uintptr {
	return r.patch.Trampoline
}

func (r *Record) Installed() bool { return r.installed.Load() }

// Enabled reports whether scripts asked for this hook's callbacks.
func (r *Record) Enabled() bool { return r.enabled.Load() }

// Persistent reports whether Enabled survives a runtime reset.
func (r *Record) Persistent() bool { return r.persistent.Load() }

// Dispatch runs one intercepted call. pre runs first and returns true to
// suppress the original; call delegates to the original; post runs after.
// pre and post only run while the record is enabled, call always runs
// unless pre suppressed it. The enabled flag is sampled once per call.
func (r *Record) Dispatch(pre func() bool, call func(), post func()) {
	enabled := r.enabled.Load()
	if enabled && pre != nil && pre() {
		return
	}
	if call != nil {
		call()
	}
	if enabled && post != nil {
		post()
	}
}

// Manager owns every Record in the process.
type Manager struct {
	patcher Patcher

	mu             sync.Mutex
	byName         map[string]*Record
	byTarget       map[uintptr]*Record
	persistentMode atomic.Bool
}

func NewManager(p Patcher) *Manager {
	return &Manager{
		patcher:  p,
		byName:   map[string]*Record{},
		byTarget: map[uintptr]*Record{},
	}
}

// Install patches target so that calls run interceptor. Failing to install
// leaves target untouched.
func (m *Manager) Install(name string, target, interceptor uintptr) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDoubleHook, name)
	}
	if other, ok := m.byTarget[target]; ok {
		return nil, fmt.Errorf("%w: %s and %s share target %#x", ErrDoubleHook, name, other.Name, target)
	}
	patch, err := m.patcher.Patch(target, interceptor)
	if err != nil {
		return nil, fmt.Errorf("install %s at %#x: %w", name, target, err)
	}
	r := &Record{Name: name, Target: target, Interceptor: interceptor, patch: patch}
	r.installed.Store(true)
	m.byName[name] = r
	m.byTarget[target] = r
	return r, nil
}

func (m *Manager) Get(name string) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byName[name]
	return r, ok
}

// Records returns every installed hook sorted by name.
func (m *Manager) Records() []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Record, 0, len(m.byName))
	for _, r := range m.byName {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enable turns on script dispatch for name. In persistent mode the record
// also keeps the flag across runtime resets.
func (m *Manager) Enable(name string) error {
	r, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrHookNotFound, name)
	}
	r.enabled.Store(true)
	if m.persistentMode.Load() {
		r.persistent.Store(true)
	}
	return nil
}

// Disable turns off script dispatch for name and drops its persistence.
func (m *Manager) Disable(name string) error {
	r, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrHookNotFound, name)
	}
	r.enabled.Store(false)
	r.persistent.Store(false)
	return nil
}

// Clear disables every hook, persistent or not.
func (m *Manager) Clear() {
	for _, r := range m.Records() {
		r.enabled.Store(false)
		r.persistent.Store(false)
	}
}

func (m *Manager) SetPersistentMode(on bool) { m.persistentMode.Store(on) }

func (m *Manager) PersistentMode() bool { return m.persistentMode.Load() }

// ClearBindings disables every hook that was not enabled in persistent mode.
// Every runtime build calls it before running the entry script.
func (m *Manager) ClearBindings() {
	for _, r := range m.Records() {
		if !r.persistent.Load() {
			r.enabled.Store(false)
		}
	}
}

// Uninstall restores the original bytes of name.
func (m *Manager) Uninstall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHookNotFound, name)
	}
	return m.uninstallLocked(r)
}

func (m *Manager) uninstallLocked(r *Record) error {
	if err := m.patcher.Restore(r.patch); err != nil {
		return fmt.Errorf("uninstall %s: %w", r.Name, err)
	}
	r.installed.Store(false)
	r.enabled.Store(false)
	delete(m.byName, r.Name)
	delete(m.byTarget, r.Target)
	return nil
}

// Close uninstalls every hook.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, r := range m.byName {
		if err := m.uninstallLocked(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
