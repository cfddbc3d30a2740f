package luart

import (
	"fmt"
	"math"
	"strconv"

	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/entity"
	"github.com/sliverarmory/rosaserver/layout"
)

// Lua numbers are doubles. Integers beyond this magnitude are pushed as
// decimal strings so no digits are lost.
const maxExactInt = 1 << 53

// Integer, Float and UnsignedInteger are argument boxes handed to callbacks.
// A callback changes the value the host sees by assigning arg.value.
type Integer struct{ Value int64 }

type Float struct{ Value float64 }

type UnsignedInteger struct{ Value uint64 }

const (
	handleType   = "rosa.Handle"
	vectorType   = "rosa.Vector"
	rotType      = "rosa.RotMatrix"
	integerType  = "rosa.Integer"
	floatType    = "rosa.Float"
	unsignedType = "rosa.UnsignedInteger"
)

func (r *Runtime) push(state *lua.State, v any) {
	switch v := v.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(v)
	case string:
		state.PushString(v)
	case []byte:
		state.PushString(string(v))
	case int:
		state.PushInteger(v)
	case int8:
		state.PushInteger(int(v))
	case int16:
		state.PushInteger(int(v))
	case int32:
		state.PushInteger(int(v))
	case uint8:
		state.PushInteger(int(v))
	case uint16:
		state.PushInteger(int(v))
	case uint32:
		state.PushNumber(float64(v))
	case int64:
		pushInt64(state, v)
	case uint64:
		if v > maxExactInt {
			state.PushString(strconv.FormatUint(v, 10))
		} else {
			state.PushNumber(float64(v))
		}
	case float32:
		state.PushNumber(float64(v))
	case float64:
		state.PushNumber(v)
	case Reason:
		state.PushInteger(int(v))
	case entity.Handle:
		state.PushUserData(v)
		lua.SetMetaTableNamed(state, handleType)
	case *entity.Vector:
		state.PushUserData(v)
		lua.SetMetaTableNamed(state, vectorType)
	case *entity.RotMatrix:
		state.PushUserData(v)
		lua.SetMetaTableNamed(state, rotType)
	case *Integer:
		state.PushUserData(v)
		lua.SetMetaTableNamed(state, integerType)
	case *Float:
		state.PushUserData(v)
		lua.SetMetaTableNamed(state, floatType)
	case *UnsignedInteger:
		state.PushUserData(v)
		lua.SetMetaTableNamed(state, unsignedType)
	default:
		state.PushString(fmt.Sprint(v))
	}
}

func pushInt64(state *lua.State, v int64) {
	if v > maxExactInt || v < -maxExactInt {
		state.PushString(strconv.FormatInt(v, 10))
		return
	}
	state.PushNumber(float64(v))
}

// value converts the Lua value at index to its Go form: nil, bool,
// float64, string, or the Go value held by a userdata.
func value(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := state.ToNumber(index)
		return n
	case lua.TypeString:
		s, _ := state.ToString(index)
		return s
	case lua.TypeUserData:
		return state.ToUserData(index)
	}
	return nil
}

// int64Arg accepts a number or a decimal string.
func int64Arg(state *lua.State, index int) int64 {
	if state.TypeOf(index) == lua.TypeString {
		s, _ := state.ToString(index)
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			lua.ArgumentError(state, index, "integer string expected")
		}
		return v
	}
	n := lua.CheckNumber(state, index)
	if n != math.Trunc(n) {
		lua.ArgumentError(state, index, "integer expected")
	}
	return int64(n)
}

func uint64Arg(state *lua.State, index int) uint64 {
	if state.TypeOf(index) == lua.TypeString {
		s, _ := state.ToString(index)
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			lua.ArgumentError(state, index, "unsigned integer string expected")
		}
		return v
	}
	n := lua.CheckNumber(state, index)
	if n < 0 || n != math.Trunc(n) {
		lua.ArgumentError(state, index, "unsigned integer expected")
	}
	return uint64(n)
}

// raise turns a Go error into a Lua error. It does not return.
func raise(state *lua.State, err error) int {
	lua.Errorf(state, "%s", err.Error())
	return 0
}

func registerBoxes(state *lua.State) {
	boxType(state, integerType,
		func(ud any, state *lua.State) bool {
			b, ok := ud.(*Integer)
			if ok {
				pushInt64(state, b.Value)
			}
			return ok
		},
		func(ud any, state *lua.State) bool {
			b, ok := ud.(*Integer)
			if ok {
				b.Value = int64Arg(state, 3)
			}
			return ok
		})
	boxType(state, floatType,
		func(ud any, state *lua.State) bool {
			b, ok := ud.(*Float)
			if ok {
				state.PushNumber(b.Value)
			}
			return ok
		},
		func(ud any, state *lua.State) bool {
			b, ok := ud.(*Float)
			if ok {
				b.Value = lua.CheckNumber(state, 3)
			}
			return ok
		})
	boxType(state, unsignedType,
		func(ud any, state *lua.State) bool {
			b, ok := ud.(*UnsignedInteger)
			if ok {
				if b.Value > maxExactInt {
					state.PushString(strconv.FormatUint(b.Value, 10))
				} else {
					state.PushNumber(float64(b.Value))
				}
			}
			return ok
		},
		func(ud any, state *lua.State) bool {
			b, ok := ud.(*UnsignedInteger)
			if ok {
				b.Value = uint64Arg(state, 3)
			}
			return ok
		})
}

// boxType registers a metatable exposing a single read/write "value" field.
func boxType(state *lua.State, name string, get, set func(ud any, state *lua.State) bool) {
	lua.NewMetaTable(state, name)
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "__index", Function: func(state *lua.State) int {
			ud := lua.CheckUserData(state, 1, name)
			if lua.CheckString(state, 2) != "value" || !get(ud, state) {
				state.PushNil()
			}
			return 1
		}},
		{Name: "__newindex", Function: func(state *lua.State) int {
			ud := lua.CheckUserData(state, 1, name)
			if lua.CheckString(state, 2) != "value" {
				lua.ArgumentError(state, 2, "only value can be set")
			}
			set(ud, state)
			return 0
		}},
	}, 0)
	state.Pop(1)
}

// parseIntString converts the decimal form used for integers beyond double
// precision. u64 fields take the full unsigned range.
func parseIntString(t layout.Type, s string) (any, error) {
	if t == layout.TypeU64 {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, entity.ErrInvalidArgument
		}
		return n, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, entity.ErrInvalidArgument
	}
	return n, nil
}

// Values a script hands to the host across calls live in a private registry
// table. Keys come from refNext and are recycled through refFree.
const refsKey = "rosa.refs"

// ref pops the top value into the refs table and returns its key.
func (r *Runtime) ref(state *lua.State) int {
	key := r.refNext + 1
	if n := len(r.refFree); n > 0 {
		key = r.refFree[n-1]
		r.refFree = r.refFree[:n-1]
	} else {
		r.refNext = key
	}
	lua.SubTable(state, lua.RegistryIndex, refsKey)
	state.Insert(-2)
	state.RawSetInt(-2, key)
	state.Pop(1)
	return key
}

func (r *Runtime) unref(state *lua.State, key int) {
	if key <= 0 {
		return
	}
	lua.SubTable(state, lua.RegistryIndex, refsKey)
	state.PushNil()
	state.RawSetInt(-2, key)
	state.Pop(1)
	r.refFree = append(r.refFree, key)
}

// pushRef pushes the value stored under key, or nil once it was released.
func (r *Runtime) pushRef(state *lua.State, key int) {
	lua.SubTable(state, lua.RegistryIndex, refsKey)
	state.RawGetInt(-1, key)
	state.Remove(-2)
}
