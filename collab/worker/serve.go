package worker

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/logging"
)

// Serve runs script as a worker: a fresh Lua state whose sendMessage and
// receiveMessage talk to the parent over in and out. args become the
// script's varargs. Serve returns when the script does.
func Serve(script string, args []string, in io.Reader, out io.Writer, logger *slog.Logger) error {
	log := logging.Component(logger, "worker").With("script", script)
	inbox := newInbox(in)
	var mu sync.Mutex

	state := lua.NewState()
	lua.OpenLibraries(state)

	state.Register("sendMessage", func(state *lua.State) int {
		msg := lua.CheckString(state, 1)
		mu.Lock()
		err := WriteFrame(out, Frame{Body: msg})
		mu.Unlock()
		if err != nil {
			lua.Errorf(state, "%s", err.Error())
		}
		return 0
	})
	// receiveMessage() returns the next message or nil when none is queued.
	state.Register("receiveMessage", func(state *lua.State) int {
		f, ok := inbox.poll()
		if !ok {
			state.PushNil()
			return 1
		}
		state.PushString(f.Body)
		return 1
	})
	// parentAlive() is false once the parent closed the channel.
	state.Register("parentAlive", func(state *lua.State) int {
		select {
		case <-inbox.done:
			state.PushBoolean(false)
		default:
			state.PushBoolean(true)
		}
		return 1
	})
	// sleep(ms) raises once the parent is gone so a stopped worker unwinds.
	state.Register("sleep", func(state *lua.State) int {
		d := time.Duration(lua.CheckNumber(state, 1) * float64(time.Millisecond))
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-inbox.done:
			lua.Errorf(state, "%s", ErrTerminated.Error())
		}
		return 0
	})
	state.Register("print", func(state *lua.State) int {
		parts := make([]string, 0, state.Top())
		for i := 1; i <= state.Top(); i++ {
			s, _ := lua.ToStringMeta(state, i)
			state.Pop(1)
			parts = append(parts, s)
		}
		log.Info(strings.Join(parts, "\t"))
		return 0
	})

	if err := lua.LoadFile(state, script, ""); err != nil {
		return fmt.Errorf("load %s: %w", script, err)
	}
	for _, a := range args {
		state.PushString(a)
	}
	if err := state.ProtectedCall(len(args), 0, 0); err != nil {
		return fmt.Errorf("run %s: %w", script, err)
	}
	return nil
}
