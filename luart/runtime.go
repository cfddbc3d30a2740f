// Package luart owns the embedded Lua state: its construction, the script
// API bindings, callback dispatch and the reset lifecycle.
//
// A Runtime is Uninitialized until the host's first game reset calls
// Initialize. From then on it is Active; Reset tears the whole state down
// and rebuilds it from the entry script.
package luart

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/collab"
	"github.com/sliverarmory/rosaserver/entity"
	"github.com/sliverarmory/rosaserver/hook"
	"github.com/sliverarmory/rosaserver/logging"
)

// Reason says why a state was built or why the game was reset. Scripts see
// it as RESET_REASON and as the first ResetGame argument.
type Reason int

const (
	ReasonBoot Reason = iota
	ReasonEngineCall
	ReasonLuaReset
	ReasonLuaCall
)

func (r Reason) String() string {
	switch r {
	case ReasonBoot:
		return "boot"
	case ReasonEngineCall:
		return "enginecall"
	case ReasonLuaReset:
		return "luareset"
	case ReasonLuaCall:
		return "luacall"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

var (
	ErrNotActive       = errors.New("runtime not active")
	ErrAlreadyActive   = errors.New("runtime already active")
	ErrResetInCallback = errors.New("reset requested inside a callback")
	// ErrScript wraps entry script load and run failures. The runtime stays
	// Active when it is returned.
	ErrScript = errors.New("entry script failed")
)

// DefaultEntryFile is run on every build when Options.EntryFile is empty.
const DefaultEntryFile = "main/init.lua"

type Options struct {
	Registry  *entity.Registry
	Hooks     *hook.Manager
	Logger    *slog.Logger
	EntryFile string
	Collab    collab.Set

	// ResetGame runs the host's game reset through its interceptor. Nil
	// makes server.reset() raise an error.
	ResetGame func(reason Reason)
	// HTTPTimeout bounds http.getSync and http.postSync. Zero means 10s.
	HTTPTimeout time.Duration
	// Exit backs os.exit. Nil means os.Exit.
	Exit func(code int)
}

type callback struct {
	name    string
	ref     int
	removed bool
}

// Runtime is the scripting environment. All interpreter access goes through
// its lock; callbacks run on whichever host thread fired them.
type Runtime struct {
	opts      Options
	log       *slog.Logger
	scriptLog *slog.Logger
	started   time.Time

	lock  threadLock
	state *lua.State
	depth int

	active  atomic.Bool
	pending atomic.Int32

	callbacks map[string][]*callback
	side      map[string]map[int]int
	refNext   int
	refFree   []int
	closers   []io.Closer
}

func New(opts Options) *Runtime {
	if opts.EntryFile == "" {
		opts.EntryFile = DefaultEntryFile
	}
	if opts.HTTPTimeout == 0 {
		opts.HTTPTimeout = 10 * time.Second
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &Runtime{
		opts:      opts,
		log:       logging.Component(opts.Logger, "lua"),
		scriptLog: logging.Component(opts.Logger, "script"),
		started:   time.Now(),
	}
}

// Active reports whether a state exists.
func (r *Runtime) Active() bool { return r.active.Load() }

// Initialize builds the first state with reason boot.
func (r *Runtime) Initialize() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.active.Load() {
		return ErrAlreadyActive
	}
	r.log.Info("Initializing state...")
	return r.build(ReasonBoot)
}

// Reset destroys the current state and builds a new one. It fails with
// ErrResetInCallback when the calling thread is running a callback; use
// RequestReset from there.
func (r *Runtime) Reset(reason Reason) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.active.Load() {
		return ErrNotActive
	}
	if r.depth > 0 {
		return ErrResetInCallback
	}
	r.log.Info("Resetting state...", "reason", reason)
	r.teardown()
	return r.build(reason)
}

// RequestReset flags a reset for the next ServicePendingReset. A later
// request replaces an earlier one.
func (r *Runtime) RequestReset(reason Reason) {
	r.pending.Store(int32(reason) + 1)
}

// ServicePendingReset performs a flagged reset, if any. It is called at the
// tick boundary where no callback is running.
func (r *Runtime) ServicePendingReset() (Reason, bool, error) {
	p := r.pending.Swap(0)
	if p == 0 {
		return 0, false, nil
	}
	reason := Reason(p - 1)
	return reason, true, r.Reset(reason)
}

// ResetOrDefer resets now, or flags the reset when the calling thread is
// inside a callback. It reports whether the reset was deferred.
func (r *Runtime) ResetOrDefer(reason Reason) (bool, error) {
	r.lock.Lock()
	inCallback := r.depth > 0
	r.lock.Unlock()
	if inCallback {
		r.RequestReset(reason)
		return true, nil
	}
	return false, r.Reset(reason)
}

// Fire runs the callbacks registered for event in registration order and
// reports whether one of them returned true. Nothing runs while the runtime
// is inactive.
func (r *Runtime) Fire(event string, args ...any) bool {
	if !r.active.Load() {
		return false
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.state == nil {
		return false
	}
	return r.fire(event, len(args), func(state *lua.State) {
		for _, a := range args {
			r.push(state, a)
		}
	})
}

func (r *Runtime) fire(event string, nargs int, push func(*lua.State)) bool {
	list := append([]*callback(nil), r.callbacks[event]...)
	if len(list) == 0 {
		return false
	}
	state := r.state
	state.CheckStack(nargs + 2)

	r.depth++
	defer func() { r.depth-- }()

	for _, cb := range list {
		if cb.removed {
			continue
		}
		top := state.Top()
		r.pushRef(state, cb.ref)
		push(state)
		err := state.ProtectedCall(nargs, 1, 0)
		if err != nil {
			r.log.Error("callback failed", "event", event, "name", cb.name, "err", err)
			state.SetTop(top)
			continue
		}
		suppress := state.IsBoolean(-1) && state.ToBoolean(-1)
		state.SetTop(top)
		if suppress {
			return true
		}
	}
	return false
}

// Do runs fn against the live state under the runtime lock.
func (r *Runtime) Do(fn func(state *lua.State) error) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.state == nil {
		return ErrNotActive
	}
	return fn(r.state)
}

// ClearSide drops the script data table attached to one slot of a kind.
func (r *Runtime) ClearSide(kind string, index int) {
	if !r.active.Load() {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	slots := r.side[kind]
	if ref, ok := slots[index]; ok {
		if r.state != nil {
			r.unref(r.state, ref)
		}
		delete(slots, index)
	}
}

// SideEntries is the number of slots of kind carrying script data.
func (r *Runtime) SideEntries(kind string) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.side[kind])
}

// Callbacks is the number of callbacks registered for event.
func (r *Runtime) Callbacks(event string) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.callbacks[event])
}

// Close tears the state down and returns the runtime to Uninitialized.
func (r *Runtime) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.active.Load() {
		return nil
	}
	if r.depth > 0 {
		return ErrResetInCallback
	}
	r.teardown()
	return nil
}

func (r *Runtime) build(reason Reason) error {
	state := lua.NewState()
	lua.OpenLibraries(state)

	r.state = state
	r.callbacks = map[string][]*callback{}
	r.side = map[string]map[int]int{}

	r.register(state)
	if r.opts.Hooks != nil {
		r.opts.Hooks.ClearBindings()
	}
	state.PushInteger(int(reason))
	state.SetGlobal("RESET_REASON")
	r.active.Store(true)

	r.log.Info("Running entry script...", "file", r.opts.EntryFile, "reason", reason)

	r.depth++
	defer func() { r.depth-- }()

	top := state.Top()
	defer state.SetTop(top)
	if err := lua.LoadFile(state, r.opts.EntryFile, ""); err != nil {
		r.log.Error("entry script failed to load", "file", r.opts.EntryFile, "err", err)
		return fmt.Errorf("%w: load %s: %w", ErrScript, r.opts.EntryFile, err)
	}
	state.PushInteger(int(reason))
	if err := state.ProtectedCall(1, 0, 0); err != nil {
		r.log.Error("entry script failed", "file", r.opts.EntryFile, "err", err)
		return fmt.Errorf("%w: run %s: %w", ErrScript, r.opts.EntryFile, err)
	}
	r.log.Info("No problems!")
	return nil
}

func (r *Runtime) teardown() {
	for _, list := range r.callbacks {
		for _, cb := range list {
			cb.removed = true
		}
	}
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			r.log.Warn("closing script resource", "err", err)
		}
	}
	r.closers = nil
	r.side = nil
	r.callbacks = nil
	r.refNext = 0
	r.refFree = nil
	r.state = nil
	r.active.Store(false)
}

// track closes c on the next teardown.
func (r *Runtime) track(c io.Closer) {
	r.closers = append(r.closers, c)
}
