package luart

import (
	"errors"
	"math"
	"runtime"

	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/entity"
	"github.com/sliverarmory/rosaserver/memmod"
)

// botTeam is the team the host gives bots.
const botTeam = 6

func checkHandle(state *lua.State, index int) entity.Handle {
	return lua.CheckUserData(state, index, handleType).(entity.Handle)
}

func (r *Runtime) registerEntities(state *lua.State) {
	reg := r.opts.Registry
	if reg == nil {
		return
	}

	lua.NewMetaTable(state, handleType)
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "__index", Function: r.handleIndex},
		{Name: "__newindex", Function: r.handleNewIndex},
		{Name: "__eq", Function: func(state *lua.State) int {
			a, aok := lua.TestUserData(state, 1, handleType).(entity.Handle)
			b, bok := lua.TestUserData(state, 2, handleType).(entity.Handle)
			state.PushBoolean(aok && bok && a == b)
			return 1
		}},
		{Name: "__tostring", Function: func(state *lua.State) int {
			state.PushString(checkHandle(state, 1).String())
			return 1
		}},
	}, 0)
	state.Pop(1)

	for _, k := range reg.Kinds() {
		r.registerKind(state, k)
	}
}

func (r *Runtime) registerKind(state *lua.State, k *entity.Kind) {
	getByIndex := func(state *lua.State) int {
		h, err := k.Get(lua.CheckInteger(state, 1))
		if err != nil {
			return raise(state, err)
		}
		r.push(state, h)
		return 1
	}

	funcs := []lua.RegistryFunction{
		{Name: "getCount", Function: func(state *lua.State) int {
			state.PushInteger(k.Count())
			return 1
		}},
		{Name: "getAll", Function: func(state *lua.State) int {
			state.NewTable()
			i := 1
			for h := range k.All() {
				r.push(state, h)
				state.RawSetInt(-2, i)
				i++
			}
			return 1
		}},
		{Name: "getByIndex", Function: getByIndex},
	}
	if k.CanCreate() {
		funcs = append(funcs, lua.RegistryFunction{Name: "create", Function: func(state *lua.State) int {
			return r.create(state, k)
		}})
	}
	funcs = append(funcs, kindExtras(r, k)...)

	state.NewTable()
	lua.SetFunctions(state, funcs, 0)

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "__len", Function: func(state *lua.State) int {
			state.PushInteger(k.Count())
			return 1
		}},
		{Name: "__index", Function: func(state *lua.State) int {
			if !state.IsNumber(2) {
				state.PushNil()
				return 1
			}
			state.Remove(1)
			return getByIndex(state)
		}},
	}, 0)
	state.SetMetaTable(-2)
	state.SetGlobal(k.Name())
}

// kindExtras are the lookups scripts use most, bound to the kinds that
// carry the matching field.
func kindExtras(r *Runtime, k *entity.Kind) []lua.RegistryFunction {
	var extras []lua.RegistryFunction
	findInt := func(field string) lua.Function {
		return func(state *lua.State) int {
			if h, ok := k.FindInt(field, int64Arg(state, 1)); ok {
				r.push(state, h)
			} else {
				state.PushNil()
			}
			return 1
		}
	}
	findString := func(field string) lua.Function {
		return func(state *lua.State) int {
			if h, ok := k.FindString(field, lua.CheckString(state, 1)); ok {
				r.push(state, h)
			} else {
				state.PushNil()
			}
			return 1
		}
	}

	switch k.Name() {
	case "players":
		extras = append(extras,
			lua.RegistryFunction{Name: "getByPhone", Function: findInt("phoneNumber")},
			lua.RegistryFunction{Name: "getNonBots", Function: func(state *lua.State) int {
				state.NewTable()
				i := 1
				for h := range k.All() {
					if bot, err := h.Get("isBot"); err == nil && bot == true {
						continue
					}
					r.push(state, h)
					state.RawSetInt(-2, i)
					i++
				}
				return 1
			}},
		)
	case "accounts":
		extras = append(extras,
			lua.RegistryFunction{Name: "getByPhone", Function: findInt("phoneNumber")},
			lua.RegistryFunction{Name: "save", Function: r.accountsSave},
		)
	case "items":
		extras = append(extras, lua.RegistryFunction{Name: "createRope", Function: r.createRope})
	case "itemTypes", "vehicleTypes":
		extras = append(extras, lua.RegistryFunction{Name: "getByName", Function: findString("name")})
	}
	return extras
}

// accounts.save() writes the host's account database.
func (r *Runtime) accountsSave(state *lua.State) int {
	fn, ok := r.opts.Registry.Table().Func("saveAccountsServer")
	if !ok {
		return raise(state, entity.ErrUnsupported)
	}
	r.opts.Registry.Caller().Call(fn)
	return 0
}

// players.createBot() creates a player flagged as a bot, or returns nil when
// the host has no free slot.
func (r *Runtime) createBot(state *lua.State, k *entity.Kind) int {
	if !k.CanCreate() {
		return raise(state, entity.ErrUnsupported)
	}
	h, err := k.Create()
	if errors.Is(err, entity.ErrHostFailed) {
		state.PushNil()
		return 1
	}
	if err != nil {
		return raise(state, err)
	}
	for field, v := range map[string]any{"isBot": true, "name": "Bot", "team": int64(botTeam)} {
		if _, ok := k.Field(field); ok {
			if err := h.Set(field, v); err != nil {
				return raise(state, err)
			}
		}
	}
	r.push(state, h)
	return 1
}

// items.createRope(pos, rot) creates a rope and returns its first item.
func (r *Runtime) createRope(state *lua.State) int {
	fn := r.hostFunc(state, "createRope")
	var pins runtime.Pinner
	defer pins.Unpin()
	pos := pinVector(state, 1, &pins)
	rot := checkRot(state, 2)
	rot.Pin(&pins)

	id := memmod.Int32(r.call(fn, pos, rot.Addr()))
	items, ok := r.opts.Registry.Kind("items")
	if !ok || id < 0 {
		state.PushNil()
		return 1
	}
	h, err := items.Get(int(id))
	if err != nil {
		state.PushNil()
		return 1
	}
	r.push(state, h)
	return 1
}

// create converts script arguments to machine words: numbers and booleans
// by value, handles by index, vectors and matrices by address, nil as -1.
func (r *Runtime) create(state *lua.State, k *entity.Kind) int {
	var pins runtime.Pinner
	defer pins.Unpin()

	n := state.Top()
	args := make([]uintptr, 0, n)
	for i := 1; i <= n; i++ {
		switch v := value(state, i).(type) {
		case nil:
			args = append(args, memmod.Arg(-1))
		case bool:
			if v {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		case float64:
			if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxUint32 {
				lua.ArgumentError(state, i, "integer expected")
			}
			args = append(args, uintptr(int64(v)))
		case entity.Handle:
			args = append(args, memmod.Arg(int32(v.Index())))
		case *entity.Vector:
			v.Pin(&pins)
			args = append(args, v.Addr())
		case *entity.RotMatrix:
			v.Pin(&pins)
			args = append(args, v.Addr())
		default:
			lua.ArgumentError(state, i, "unsupported create argument")
		}
	}

	h, err := k.Create(args...)
	if err != nil {
		if errors.Is(err, entity.ErrHostFailed) {
			state.PushNil()
			return 1
		}
		return raise(state, err)
	}
	r.push(state, h)
	return 1
}

func (r *Runtime) handleIndex(state *lua.State) int {
	h := checkHandle(state, 1)
	key := lua.CheckString(state, 2)

	switch key {
	case "class":
		state.PushString(h.Kind().Class())
		return 1
	case "index":
		state.PushInteger(h.Index())
		return 1
	case "isActive":
		state.PushBoolean(h.Live())
		return 1
	case "data":
		if !h.Live() {
			return raise(state, entity.ErrInvalidHandle)
		}
		r.pushSide(state, h)
		return 1
	}
	if fn := r.handleMethod(h.Kind(), key); fn != nil {
		state.PushGoFunction(fn)
		return 1
	}

	v, err := h.Get(key)
	if errors.Is(err, entity.ErrInvalidArgument) {
		state.PushNil()
		return 1
	}
	if err != nil {
		return raise(state, err)
	}
	r.push(state, v)
	return 1
}

func (r *Runtime) handleNewIndex(state *lua.State) int {
	h := checkHandle(state, 1)
	key := lua.CheckString(state, 2)
	v := value(state, 3)

	if f, ok := h.Kind().Field(key); ok && f.Type.IsInteger() {
		if s, isString := v.(string); isString {
			parsed, err := parseIntString(f.Type, s)
			if err != nil {
				return raise(state, err)
			}
			v = parsed
		}
	}
	if err := h.Set(key, v); err != nil {
		return raise(state, err)
	}
	return 0
}

func (r *Runtime) handleMethod(k *entity.Kind, key string) lua.Function {
	switch key {
	case "remove":
		if !k.CanRemove() {
			return nil
		}
		return func(state *lua.State) int {
			if err := checkHandle(state, 1).Remove(); err != nil {
				return raise(state, err)
			}
			return 0
		}
	case "update":
		return r.hostEvent(k, "players", "createEventUpdatePlayer")
	case "updateFinance":
		return r.hostEvent(k, "players", "createEventUpdatePlayerFinance")
	}
	return nil
}

// hostEvent calls a host function taking the handle's index.
func (r *Runtime) hostEvent(k *entity.Kind, kind, name string) lua.Function {
	if k.Name() != kind {
		return nil
	}
	fn, ok := r.opts.Registry.Table().Func(name)
	if !ok {
		return nil
	}
	return func(state *lua.State) int {
		h := checkHandle(state, 1)
		if !h.Live() {
			return raise(state, entity.ErrInvalidHandle)
		}
		r.opts.Registry.Caller().Call(fn, memmod.Arg(int32(h.Index())))
		return 0
	}
}

// pushSide pushes the data table for h, creating it on first use.
func (r *Runtime) pushSide(state *lua.State, h entity.Handle) {
	slots := r.side[h.Kind().Name()]
	if slots == nil {
		slots = map[int]int{}
		r.side[h.Kind().Name()] = slots
	}
	if ref, ok := slots[h.Index()]; ok {
		r.pushRef(state, ref)
		return
	}
	state.NewTable()
	state.PushValue(-1)
	slots[h.Index()] = r.ref(state)
}
