package luart

import (
	"errors"

	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/entity"
)

// ticksPerSecond is the host's fixed simulation rate.
const ticksPerSecond = 60

func (r *Runtime) registerServer(state *lua.State) {
	reg := r.opts.Registry

	state.NewTable()
	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "__index", Function: func(state *lua.State) int {
			key := lua.CheckString(state, 2)
			switch key {
			case "class":
				state.PushString("Server")
				return 1
			case "TPS":
				state.PushInteger(ticksPerSecond)
				return 1
			case "reset":
				state.PushGoFunction(r.serverReset)
				return 1
			case "defaultGravity":
				if reg == nil {
					break
				}
				if g, ok := reg.Table().Original("gravity"); ok {
					state.PushNumber(g)
					return 1
				}
			}
			if reg == nil {
				state.PushNil()
				return 1
			}
			v, err := reg.Global(key)
			if err != nil {
				state.PushNil()
				return 1
			}
			r.push(state, v)
			return 1
		}},
		{Name: "__newindex", Function: func(state *lua.State) int {
			key := lua.CheckString(state, 2)
			if reg == nil {
				return raise(state, entity.ErrUnsupported)
			}
			v := value(state, 3)
			if s, ok := v.(string); ok {
				if g, found := reg.Table().Global(key); found && g.Type.IsInteger() {
					n, err := parseIntString(g.Type, s)
					if err != nil {
						return raise(state, err)
					}
					v = n
				}
			}
			if err := reg.SetGlobal(key, v); err != nil {
				return raise(state, err)
			}
			return 0
		}},
	}, 0)
	state.SetMetaTable(-2)
	state.SetGlobal("server")
}

// server:reset() restarts the game through the ResetGame interceptor.
func (r *Runtime) serverReset(state *lua.State) int {
	if r.opts.ResetGame == nil {
		return raise(state, errors.New("server reset unavailable"))
	}
	r.opts.ResetGame(ReasonLuaCall)
	return 0
}
