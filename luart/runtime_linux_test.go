//go:build linux

package luart_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/entity/entitytest"
	"github.com/sliverarmory/rosaserver/hook"
	"github.com/sliverarmory/rosaserver/hook/hooktest"
	"github.com/sliverarmory/rosaserver/logging"
	"github.com/sliverarmory/rosaserver/luart"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	rt    *luart.Runtime
	host  *entitytest.Host
	hooks *hook.Manager
	log   *syncBuffer
}

// newFixture writes script as the entry file and builds a runtime over a
// fake host. The runtime is not initialized.
func newFixture(t *testing.T, script string, configure ...func(*luart.Options)) *fixture {
	t.Helper()
	entry := filepath.Join(t.TempDir(), "init.lua")
	if err := os.WriteFile(entry, []byte(script), 0o644); err != nil {
		t.Fatalf("write entry script: %v", err)
	}

	host := entitytest.NewHost(t)
	hooks := hook.NewManager(hooktest.NewPatcher())
	for i, name := range []string{"Logic", "Physics", "HumanDamage"} {
		if _, err := hooks.Install(name, host.Base+0x2000+uintptr(i)*0x10, 0xdead0000+uintptr(i)); err != nil {
			t.Fatalf("Install(%s): %v", name, err)
		}
	}

	buf := &syncBuffer{}
	opts := luart.Options{
		Registry:  host.Registry,
		Hooks:     hooks,
		Logger:    logging.NewLogger("debug", buf),
		EntryFile: entry,
	}
	for _, c := range configure {
		c(&opts)
	}
	f := &fixture{rt: luart.New(opts), host: host, hooks: hooks, log: buf}
	t.Cleanup(func() { _ = f.rt.Close() })
	return f
}

func (f *fixture) init(t *testing.T) {
	t.Helper()
	if err := f.rt.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
}

// eval runs chunk in the live state.
func (f *fixture) eval(t *testing.T, chunk string) {
	t.Helper()
	err := f.rt.Do(func(state *lua.State) error {
		return lua.DoString(state, chunk)
	})
	if err != nil {
		t.Fatalf("eval %q: %v", chunk, err)
	}
}

// global reads a global as string, number, bool or nil.
func (f *fixture) global(t *testing.T, name string) any {
	t.Helper()
	var out any
	err := f.rt.Do(func(state *lua.State) error {
		state.Global(name)
		defer state.Pop(1)
		switch state.TypeOf(-1) {
		case lua.TypeNumber:
			out, _ = state.ToNumber(-1)
		case lua.TypeString:
			out, _ = state.ToString(-1)
		case lua.TypeBoolean:
			out = state.ToBoolean(-1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("global %s: %v", name, err)
	}
	return out
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t, `
		builds = (builds or 0) + 1
		reason = RESET_REASON
		vararg = ...
	`)

	if err := f.rt.Reset(luart.ReasonLuaReset); !errors.Is(err, luart.ErrNotActive) {
		t.Fatalf("Reset before Initialize = %v, want ErrNotActive", err)
	}
	if f.rt.Fire("Logic") {
		t.Fatal("Fire on an inactive runtime suppressed")
	}

	f.init(t)
	if !f.rt.Active() {
		t.Fatal("runtime not active after Initialize")
	}
	if err := f.rt.Initialize(); !errors.Is(err, luart.ErrAlreadyActive) {
		t.Fatalf("second Initialize = %v, want ErrAlreadyActive", err)
	}
	if got := f.global(t, "reason"); got != 0.0 {
		t.Fatalf("RESET_REASON = %v, want 0", got)
	}
	if got := f.global(t, "vararg"); got != 0.0 {
		t.Fatalf("entry vararg = %v, want 0", got)
	}

	if err := f.rt.Reset(luart.ReasonLuaReset); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := f.global(t, "reason"); got != float64(luart.ReasonLuaReset) {
		t.Fatalf("RESET_REASON after reset = %v", got)
	}
	if got := f.global(t, "builds"); got != 1.0 {
		t.Fatalf("builds = %v, want 1 (globals must not survive a reset)", got)
	}

	if err := f.rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.rt.Active() {
		t.Fatal("runtime active after Close")
	}
	if err := f.rt.Do(func(*lua.State) error { return nil }); !errors.Is(err, luart.ErrNotActive) {
		t.Fatalf("Do after Close = %v", err)
	}
}

func TestEntryScriptErrorsKeepRuntimeActive(t *testing.T) {
	tests := []struct {
		name   string
		script string
		remove bool
	}{
		{name: "runtime error", script: `error("boom")`},
		{name: "syntax error", script: `this is not lua`},
		{name: "missing file", script: ``, remove: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entry string
			f := newFixture(t, tt.script, func(o *luart.Options) { entry = o.EntryFile })
			if tt.remove {
				_ = os.Remove(entry)
			}
			err := f.rt.Initialize()
			if !errors.Is(err, luart.ErrScript) {
				t.Fatalf("Initialize = %v, want ErrScript", err)
			}
			if !f.rt.Active() {
				t.Fatal("runtime inactive after a script error")
			}
			if !strings.Contains(f.log.String(), "entry script failed") {
				t.Fatalf("script error not logged: %s", f.log)
			}
		})
	}
}

func TestFireOrderAndSuppression(t *testing.T) {
	f := newFixture(t, `
		order = {}
		hook.add("PlayerChat", "a", function(player, message) order[#order + 1] = "a:" .. message end)
		hook.add("PlayerChat", "b", function() order[#order + 1] = "b"; return true end)
		hook.add("PlayerChat", "c", function() order[#order + 1] = "c" end)
	`)
	f.init(t)

	if !f.rt.Fire("PlayerChat", nil, "hi") {
		t.Fatal("Fire did not report suppression")
	}
	f.eval(t, `seen = table.concat(order, ",")`)
	if got := f.global(t, "seen"); got != "a:hi,b" {
		t.Fatalf("order = %v, want a:hi,b", got)
	}

	f.eval(t, `removed = hook.remove("PlayerChat", "b")`)
	if f.global(t, "removed") != true {
		t.Fatal("hook.remove returned false")
	}
	if f.rt.Fire("PlayerChat", nil, "yo") {
		t.Fatal("Fire suppressed after the suppressing callback was removed")
	}
	f.eval(t, `seen = table.concat(order, ",")`)
	if got := f.global(t, "seen"); got != "a:hi,b,a:yo,c" {
		t.Fatalf("order = %v", got)
	}

	f.eval(t, `hook.add("PlayerChat", "a", function() order[#order + 1] = "A" end)`)
	if n := f.rt.Callbacks("PlayerChat"); n != 2 {
		t.Fatalf("re-adding a name added a callback: %d", n)
	}
	f.rt.Fire("PlayerChat", nil, "")
	f.eval(t, `seen = order[#order - 1] .. order[#order]`)
	if got := f.global(t, "seen"); got != "Ac" {
		t.Fatalf("replaced callback lost its position: %v", got)
	}
}

func TestFireNonTrueResultsDoNotSuppress(t *testing.T) {
	f := newFixture(t, `
		hook.add("Logic", "a", function() return 1 end)
		hook.add("Logic", "b", function() return "true" end)
		hook.add("Logic", "c", function() return false end)
	`)
	f.init(t)
	if f.rt.Fire("Logic") {
		t.Fatal("non-boolean results suppressed the event")
	}
}

func TestCallbackErrorDoesNotStopDispatch(t *testing.T) {
	f := newFixture(t, `
		hook.add("Logic", "bad", function() error("bad callback") end)
		hook.add("Logic", "good", function() ran = true end)
	`)
	f.init(t)

	if f.rt.Fire("Logic") {
		t.Fatal("erroring callback suppressed the event")
	}
	if f.global(t, "ran") != true {
		t.Fatal("callback after the failing one did not run")
	}
	if out := f.log.String(); !strings.Contains(out, "callback failed") || !strings.Contains(out, "bad callback") {
		t.Fatalf("callback error not logged: %s", out)
	}
}

func TestMutableArguments(t *testing.T) {
	f := newFixture(t, `
		hook.add("HumanDamage", "double", function(human, bone, damage)
			damage.value = damage.value * 2
			bone.value = 3
		end)
	`)
	f.init(t)

	bone := &luart.Integer{Value: 1}
	damage := &luart.Integer{Value: 10}
	f.rt.Fire("HumanDamage", nil, bone, damage)
	if bone.Value != 3 || damage.Value != 20 {
		t.Fatalf("bone, damage = %d, %d; want 3, 20", bone.Value, damage.Value)
	}

	scale := &luart.Float{Value: 1.5}
	u := &luart.UnsignedInteger{Value: 1 << 60}
	f.eval(t, `hook.add("Boxes", "b", function(s, u) s.value = s.value + 1; big = u.value end)`)
	f.rt.Fire("Boxes", scale, u)
	if scale.Value != 2.5 {
		t.Fatalf("Float = %v", scale.Value)
	}
	if got := f.global(t, "big"); got != "1152921504606846976" {
		t.Fatalf("large unsigned surfaced as %v", got)
	}
}

func TestHookRunFromScript(t *testing.T) {
	f := newFixture(t, `
		hook.add("Custom", "match", function(n) return n == 5 end)
		suppressed = hook.run("Custom", 5)
		notSuppressed = hook.run("Custom", 4)
		nobody = hook.run("Nobody")
	`)
	f.init(t)
	if f.global(t, "suppressed") != true || f.global(t, "notSuppressed") != false || f.global(t, "nobody") != false {
		t.Fatal("hook.run results wrong")
	}
}

func TestResetDropsSideTablesAndCallbacks(t *testing.T) {
	f := newFixture(t, `
		hook.add("Touch", "mark", function(h) h.data.touched = (h.data.touched or 0) + 1 end)
	`)
	f.init(t)
	f.host.Activate("humans", 1)
	humans, _ := f.host.Registry.Kind("humans")
	h, err := humans.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	f.rt.Fire("Touch", h)
	f.rt.Fire("Touch", h)
	if n := f.rt.SideEntries("humans"); n != 1 {
		t.Fatalf("SideEntries = %d, want 1", n)
	}
	f.eval(t, `touched = humans[1].data.touched`)
	if got := f.global(t, "touched"); got != 2.0 {
		t.Fatalf("data.touched = %v, want 2", got)
	}

	if err := f.rt.Reset(luart.ReasonLuaReset); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n := f.rt.SideEntries("humans"); n != 0 {
		t.Fatalf("SideEntries after reset = %d", n)
	}
	if n := f.rt.Callbacks("Touch"); n != 1 {
		t.Fatalf("Callbacks after reset = %d, want 1 from the new script run", n)
	}
	f.eval(t, `touched = humans[1].data.touched`)
	if got := f.global(t, "touched"); got != nil {
		t.Fatalf("data survived reset: %v", got)
	}

	f.rt.Fire("Touch", h)
	f.rt.ClearSide("humans", 1)
	if n := f.rt.SideEntries("humans"); n != 0 {
		t.Fatalf("SideEntries after ClearSide = %d", n)
	}
}

func TestReleasedReferencesAreReused(t *testing.T) {
	f := newFixture(t, `
		for i = 1, 50 do
			hook.add("Cycle", "tmp", function() return true end)
			hook.remove("Cycle", "tmp")
		end
		hook.add("Cycle", "keep", function(n) hits = (hits or 0) + n end)
		hook.add("Cycle", "keep", function(n) hits = (hits or 0) + n * 10 end)
	`)
	f.init(t)
	liveRefs := func() float64 {
		f.eval(t, `
			live, top = 0, 0
			for k in pairs(debug.getregistry()["rosa.refs"] or {}) do
				live = live + 1
				if k > top then top = k end
			end
		`)
		return f.global(t, "live").(float64)
	}

	if f.rt.Fire("Cycle", 2) {
		t.Fatal("removed callback still suppresses")
	}
	if got := f.global(t, "hits"); got != 20.0 {
		t.Fatalf("hits = %v, want the replacing function to run", got)
	}
	if n := liveRefs(); n != 1 {
		t.Fatalf("live refs = %v, want 1", n)
	}
	if top := f.global(t, "top"); top != 1.0 {
		t.Fatalf("highest ref = %v, want released keys reused", top)
	}

	f.host.Activate("humans", 1)
	f.host.Activate("humans", 2)
	f.eval(t, `humans[1].data.tag = "one"`)
	f.rt.ClearSide("humans", 1)
	f.eval(t, `fresh = humans[2].data.tag == nil; humans[2].data.tag = "two"`)
	if f.global(t, "fresh") != true {
		t.Fatal("reused ref leaked another slot's data")
	}
	f.eval(t, `one, two = humans[1].data.tag, humans[2].data.tag`)
	if f.global(t, "one") != nil || f.global(t, "two") != "two" {
		t.Fatalf("data tags = %v, %v", f.global(t, "one"), f.global(t, "two"))
	}
	if n := liveRefs(); n != 3 {
		t.Fatalf("live refs = %v, want callback plus two data tables", n)
	}
	f.rt.Fire("Cycle", 1)
	if got := f.global(t, "hits"); got != 30.0 {
		t.Fatalf("hits = %v after data churn", got)
	}
}

func TestResetRecountsLiveSlots(t *testing.T) {
	f := newFixture(t, `
		function counts() return #humans, players.getCount(), #players.getAll() end
		bootHumans, bootPlayers = counts()
	`)
	f.host.Activate("humans", 0)
	f.host.Activate("humans", 3)
	f.host.Activate("players", 1)
	f.init(t)
	if f.global(t, "bootHumans") != 2.0 || f.global(t, "bootPlayers") != 1.0 {
		t.Fatalf("boot counts = %v humans, %v players", f.global(t, "bootHumans"), f.global(t, "bootPlayers"))
	}

	steps := []struct {
		name    string
		toggle  func()
		humans  float64
		players float64
	}{
		{"add", func() { f.host.Activate("humans", 1); f.host.Activate("players", 2) }, 3, 2},
		{"drop", func() { f.host.Deactivate("humans", 0); f.host.Deactivate("humans", 3) }, 1, 2},
		{"empty", func() {
			f.host.Deactivate("humans", 1)
			f.host.Deactivate("players", 1)
			f.host.Deactivate("players", 2)
		}, 0, 0},
		{"full", func() {
			for i := 0; i < 4; i++ {
				f.host.Activate("humans", i)
				f.host.Activate("players", i)
			}
		}, 4, 4},
	}
	for _, step := range steps {
		step.toggle()
		if err := f.rt.Reset(luart.ReasonLuaReset); err != nil {
			t.Fatalf("%s: Reset: %v", step.name, err)
		}
		f.eval(t, `h, p, all = counts()`)
		if h := f.global(t, "h"); h != step.humans {
			t.Errorf("%s: #humans = %v, want %v", step.name, h, step.humans)
		}
		if p, all := f.global(t, "p"), f.global(t, "all"); p != step.players || all != step.players {
			t.Errorf("%s: players.getCount() = %v, #getAll() = %v, want %v", step.name, p, all, step.players)
		}
	}
}

func TestResetInsideCallback(t *testing.T) {
	f := newFixture(t, `hook.add("Tick", "r", function() rejected = goReset(); deferred = goDefer() end)`)
	f.init(t)

	var resetErr error
	err := f.rt.Do(func(state *lua.State) error {
		state.Register("goReset", func(state *lua.State) int {
			resetErr = f.rt.Reset(luart.ReasonLuaReset)
			state.PushBoolean(resetErr != nil)
			return 1
		})
		state.Register("goDefer", func(state *lua.State) int {
			deferred, err := f.rt.ResetOrDefer(luart.ReasonEngineCall)
			state.PushBoolean(deferred && err == nil)
			return 1
		})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	f.rt.Fire("Tick")
	if !errors.Is(resetErr, luart.ErrResetInCallback) {
		t.Fatalf("Reset inside callback = %v, want ErrResetInCallback", resetErr)
	}
	if f.global(t, "deferred") != true {
		t.Fatal("ResetOrDefer inside callback did not defer")
	}

	reason, ok, err := f.rt.ServicePendingReset()
	if err != nil || !ok || reason != luart.ReasonEngineCall {
		t.Fatalf("ServicePendingReset = %v, %v, %v", reason, ok, err)
	}
	if got := f.global(t, "RESET_REASON"); got != float64(luart.ReasonEngineCall) {
		t.Fatalf("RESET_REASON = %v", got)
	}
	if _, ok, _ := f.rt.ServicePendingReset(); ok {
		t.Fatal("pending reset serviced twice")
	}

	deferred, err := f.rt.ResetOrDefer(luart.ReasonEngineCall)
	if deferred || err != nil {
		t.Fatalf("ResetOrDefer outside callback = %v, %v", deferred, err)
	}
}

func TestFlagStateForReset(t *testing.T) {
	tests := []struct {
		call string
		want luart.Reason
	}{
		{"flagStateForReset()", luart.ReasonLuaReset},
		{"flagStateForReset(RESET_REASON_LUACALL)", luart.ReasonLuaCall},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			f := newFixture(t, `hook.add("Tick", "flag", function() `+tt.call+` end)`)
			f.init(t)
			f.rt.Fire("Tick")
			reason, ok, err := f.rt.ServicePendingReset()
			if err != nil || !ok || reason != tt.want {
				t.Fatalf("ServicePendingReset = %v, %v, %v; want %v", reason, ok, err, tt.want)
			}
			if got := f.global(t, "RESET_REASON"); got != float64(tt.want) {
				t.Fatalf("RESET_REASON = %v", got)
			}
		})
	}
}

func TestBuildClearsNonPersistentBindings(t *testing.T) {
	f := newFixture(t, `
		if RESET_REASON == RESET_REASON_BOOT then
			hook.enable("Logic")
			hook.persistentMode = true
			hook.enable("Physics")
			modeDuring = hook.persistentMode
			hook.persistentMode = false
		end
		ok, err = pcall(hook.enable, "NoSuchHook")
	`)
	f.init(t)

	logic, _ := f.hooks.Get("Logic")
	physics, _ := f.hooks.Get("Physics")
	if !logic.Enabled() || !physics.Enabled() || !physics.Persistent() || logic.Persistent() {
		t.Fatal("enable from script did not set record state")
	}
	if f.global(t, "modeDuring") != true || f.hooks.PersistentMode() {
		t.Fatal("persistentMode property not wired to the manager")
	}
	if f.global(t, "ok") != false || !strings.Contains(f.global(t, "err").(string), hook.ErrHookNotFound.Error()) {
		t.Fatal("enabling an unknown hook did not raise")
	}

	if err := f.rt.Reset(luart.ReasonLuaReset); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if logic.Enabled() {
		t.Fatal("non-persistent binding survived reset")
	}
	if !physics.Enabled() {
		t.Fatal("persistent binding cleared by reset")
	}

	f.eval(t, `hook.disable("Physics")`)
	if physics.Enabled() || physics.Persistent() {
		t.Fatal("hook.disable did not clear the record")
	}
	f.eval(t, `hook.enable("Logic"); hook.clear()`)
	if logic.Enabled() {
		t.Fatal("hook.clear left a record enabled")
	}
}

func TestConcurrentFire(t *testing.T) {
	f := newFixture(t, `
		count = 0
		hook.add("Physics", "count", function() count = count + 1 end)
	`)
	f.init(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				f.rt.Fire("Physics")
			}
		}()
	}
	wg.Wait()
	if got := f.global(t, "count"); got != 400.0 {
		t.Fatalf("count = %v, want 400", got)
	}
}

func TestPrintGoesToLogger(t *testing.T) {
	f := newFixture(t, `print("hello", 42, nil, Vector(1, 2, 3))`)
	f.init(t)
	out := f.log.String()
	if !strings.Contains(out, "component=script") || !strings.Contains(out, `hello\t42\tnil\tVector(1, 2, 3)`) {
		t.Fatalf("print output not logged: %s", out)
	}
}

func TestReasonString(t *testing.T) {
	tests := map[luart.Reason]string{
		luart.ReasonBoot:       "boot",
		luart.ReasonEngineCall: "enginecall",
		luart.ReasonLuaReset:   "luareset",
		luart.ReasonLuaCall:    "luacall",
		luart.Reason(9):        "reason(9)",
	}
	for r, want := range tests {
		if got := r.String(); got != want {
			t.Errorf("Reason(%d).String() = %q, want %q", int(r), got, want)
		}
	}
}
