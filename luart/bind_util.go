package luart

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Shopify/go-lua"
	"golang.org/x/sys/unix"
)

func (r *Runtime) register(state *lua.State) {
	registerBoxes(state)
	r.registerVector(state)
	r.registerUtil(state)
	r.registerEntities(state)
	r.registerServer(state)
	r.registerWorld(state)
	r.registerHook(state)
	r.registerMemory(state)
	r.registerCollab(state)
}

var stateConstants = []struct {
	name  string
	value int
}{
	{"STATE_PREGAME", 1},
	{"STATE_GAME", 2},
	{"STATE_RESTARTING", 3},

	{"TYPE_DRIVING", 1},
	{"TYPE_RACE", 2},
	{"TYPE_ROUND", 3},
	{"TYPE_WORLD", 4},
	{"TYPE_TERMINATOR", 5},
	{"TYPE_COOP", 6},
	{"TYPE_VERSUS", 7},

	{"RESET_REASON_BOOT", int(ReasonBoot)},
	{"RESET_REASON_ENGINECALL", int(ReasonEngineCall)},
	{"RESET_REASON_LUARESET", int(ReasonLuaReset)},
	{"RESET_REASON_LUACALL", int(ReasonLuaCall)},

	{"FILE_WATCH_ACCESS", unix.IN_ACCESS},
	{"FILE_WATCH_ATTRIB", unix.IN_ATTRIB},
	{"FILE_WATCH_CLOSE_WRITE", unix.IN_CLOSE_WRITE},
	{"FILE_WATCH_CLOSE_NOWRITE", unix.IN_CLOSE_NOWRITE},
	{"FILE_WATCH_CREATE", unix.IN_CREATE},
	{"FILE_WATCH_DELETE", unix.IN_DELETE},
	{"FILE_WATCH_DELETE_SELF", unix.IN_DELETE_SELF},
	{"FILE_WATCH_MODIFY", unix.IN_MODIFY},
	{"FILE_WATCH_MOVE_SELF", unix.IN_MOVE_SELF},
	{"FILE_WATCH_MOVED_FROM", unix.IN_MOVED_FROM},
	{"FILE_WATCH_MOVED_TO", unix.IN_MOVED_TO},
	{"FILE_WATCH_OPEN", unix.IN_OPEN},
	{"FILE_WATCH_MOVE", unix.IN_MOVE},
	{"FILE_WATCH_CLOSE", unix.IN_CLOSE},
	{"FILE_WATCH_DONT_FOLLOW", unix.IN_DONT_FOLLOW},
	{"FILE_WATCH_EXCL_UNLINK", unix.IN_EXCL_UNLINK},
	{"FILE_WATCH_MASK_ADD", unix.IN_MASK_ADD},
	{"FILE_WATCH_ONESHOT", unix.IN_ONESHOT},
	{"FILE_WATCH_ONLYDIR", unix.IN_ONLYDIR},
	{"FILE_WATCH_IGNORED", unix.IN_IGNORED},
	{"FILE_WATCH_ISDIR", unix.IN_ISDIR},
	{"FILE_WATCH_Q_OVERFLOW", unix.IN_Q_OVERFLOW},
	{"FILE_WATCH_UNMOUNT", unix.IN_UNMOUNT},
}

func (r *Runtime) registerUtil(state *lua.State) {
	for _, c := range stateConstants {
		state.PushNumber(float64(uint32(c.value)))
		state.SetGlobal(c.name)
	}

	state.Register("print", r.luaPrint)

	state.Global("os")
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "listDirectory", Function: osListDirectory},
		{Name: "createDirectory", Function: osCreateDirectory},
		{Name: "realClock", Function: r.osRealClock},
		{Name: "exit", Function: r.osExit},
	}, 0)
	state.Pop(1)
}

// print writes its arguments, tab separated, to the script logger.
func (r *Runtime) luaPrint(state *lua.State) int {
	n := state.Top()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		s, ok := lua.ToStringMeta(state, i)
		if !ok {
			s = lua.TypeNameOf(state, i)
		}
		state.Pop(1)
		parts = append(parts, s)
	}
	r.scriptLog.Info(strings.Join(parts, "\t"))
	return 0
}

// os.listDirectory(path) returns {path, stem, extension, isDirectory} for
// every entry, sorted by name.
func osListDirectory(state *lua.State) int {
	dir := lua.CheckString(state, 1)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return raise(state, err)
	}
	state.CreateTable(len(entries), 0)
	for i, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		state.CreateTable(0, 4)
		state.PushString(filepath.Join(dir, name))
		state.SetField(-2, "path")
		state.PushString(strings.TrimSuffix(name, ext))
		state.SetField(-2, "stem")
		state.PushString(ext)
		state.SetField(-2, "extension")
		state.PushBoolean(e.IsDir())
		state.SetField(-2, "isDirectory")
		state.RawSetInt(-2, i+1)
	}
	return 1
}

// os.createDirectory(path) creates path and its parents, returning false
// if it already existed.
func osCreateDirectory(state *lua.State) int {
	dir := lua.CheckString(state, 1)
	if _, err := os.Stat(dir); err == nil {
		state.PushBoolean(false)
		return 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return raise(state, err)
	}
	state.PushBoolean(true)
	return 1
}

// os.realClock() is monotonic seconds since the runtime was created.
func (r *Runtime) osRealClock(state *lua.State) int {
	state.PushNumber(time.Since(r.started).Seconds())
	return 1
}

func (r *Runtime) osExit(state *lua.State) int {
	code := lua.OptInteger(state, 1, 0)
	r.log.Info("script requested exit", "code", code)
	r.opts.Exit(code)
	return 0
}
