package luart

import (
	"github.com/Shopify/go-lua"
)

func (r *Runtime) registerHook(state *lua.State) {
	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "enable", Function: r.hookEnable},
		{Name: "disable", Function: r.hookDisable},
		{Name: "clear", Function: r.hookClear},
		{Name: "add", Function: r.hookAdd},
		{Name: "remove", Function: r.hookRemove},
		{Name: "run", Function: r.hookRun},
	}, 0)

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "__index", Function: func(state *lua.State) int {
			if lua.CheckString(state, 2) == "persistentMode" && r.opts.Hooks != nil {
				state.PushBoolean(r.opts.Hooks.PersistentMode())
			} else {
				state.PushNil()
			}
			return 1
		}},
		{Name: "__newindex", Function: func(state *lua.State) int {
			key := lua.CheckString(state, 2)
			if key != "persistentMode" {
				state.RawSet(1)
				return 0
			}
			if r.opts.Hooks != nil {
				r.opts.Hooks.SetPersistentMode(state.ToBoolean(3))
			}
			return 0
		}},
	}, 0)
	state.SetMetaTable(-2)
	state.SetGlobal("hook")

	state.Register("flagStateForReset", func(state *lua.State) int {
		reason := Reason(lua.OptInteger(state, 1, int(ReasonLuaReset)))
		r.log.Info("state reset flagged", "reason", reason)
		r.RequestReset(reason)
		return 0
	})
}

// hook.enable(name) turns on pre and post callbacks for an installed hook.
func (r *Runtime) hookEnable(state *lua.State) int {
	name := lua.CheckString(state, 1)
	if r.opts.Hooks == nil {
		return 0
	}
	if err := r.opts.Hooks.Enable(name); err != nil {
		return raise(state, err)
	}
	return 0
}

func (r *Runtime) hookDisable(state *lua.State) int {
	name := lua.CheckString(state, 1)
	if r.opts.Hooks == nil {
		return 0
	}
	if err := r.opts.Hooks.Disable(name); err != nil {
		return raise(state, err)
	}
	return 0
}

func (r *Runtime) hookClear(state *lua.State) int {
	if r.opts.Hooks != nil {
		r.opts.Hooks.Clear()
	}
	return 0
}

// hook.add(event, name, fn) registers fn under name. Re-adding a name
// replaces the function but keeps its place in the order.
func (r *Runtime) hookAdd(state *lua.State) int {
	event := lua.CheckString(state, 1)
	name := lua.CheckString(state, 2)
	lua.CheckType(state, 3, lua.TypeFunction)

	state.SetTop(3)
	for _, cb := range r.callbacks[event] {
		if cb.name == name {
			r.unref(state, cb.ref)
			cb.ref = r.ref(state)
			return 0
		}
	}
	r.callbacks[event] = append(r.callbacks[event], &callback{name: name, ref: r.ref(state)})
	return 0
}

func (r *Runtime) hookRemove(state *lua.State) int {
	event := lua.CheckString(state, 1)
	name := lua.CheckString(state, 2)

	list := r.callbacks[event]
	for i, cb := range list {
		if cb.name == name {
			cb.removed = true
			r.unref(state, cb.ref)
			r.callbacks[event] = append(list[:i:i], list[i+1:]...)
			state.PushBoolean(true)
			return 1
		}
	}
	state.PushBoolean(false)
	return 1
}

// hook.run(event, ...) fires event from a script and returns whether a
// callback suppressed it.
func (r *Runtime) hookRun(state *lua.State) int {
	event := lua.CheckString(state, 1)
	nargs := state.Top() - 1
	suppressed := r.fire(event, nargs, func(state *lua.State) {
		for i := 2; i <= nargs+1; i++ {
			state.PushValue(i)
		}
	})
	state.PushBoolean(suppressed)
	return 1
}
