package luart

import (
	"math"
	"strconv"

	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/entity"
	"github.com/sliverarmory/rosaserver/memmod"
)

// Addresses stay below 2^47 on amd64, so they are exact as Lua numbers.
func addressArg(state *lua.State, index int) uintptr {
	n := lua.CheckNumber(state, index)
	if n <= 0 || n != math.Trunc(n) {
		lua.ArgumentError(state, index, "address expected")
	}
	return uintptr(n)
}

func (r *Runtime) registerMemory(state *lua.State) {
	funcs := []lua.RegistryFunction{
		{Name: "getBaseAddress", Function: func(state *lua.State) int {
			if r.opts.Registry == nil {
				state.PushNumber(0)
				return 1
			}
			state.PushNumber(float64(r.opts.Registry.Table().Base()))
			return 1
		}},
		{Name: "getAddress", Function: memoryGetAddress},
		{Name: "toHexString", Function: func(state *lua.State) int {
			state.PushString("0x" + strconv.FormatUint(uint64(addressArg(state, 1)), 16))
			return 1
		}},

		{Name: "readByte", Function: readNumber[int8]},
		{Name: "readUByte", Function: readNumber[uint8]},
		{Name: "readShort", Function: readNumber[int16]},
		{Name: "readUShort", Function: readNumber[uint16]},
		{Name: "readInt", Function: readNumber[int32]},
		{Name: "readUInt", Function: readNumber[uint32]},
		{Name: "readFloat", Function: readNumber[float32]},
		{Name: "readDouble", Function: readNumber[float64]},
		{Name: "readLong", Function: func(state *lua.State) int {
			pushInt64(state, memmod.Read[int64](addressArg(state, 1)))
			return 1
		}},
		{Name: "readULong", Function: func(state *lua.State) int {
			v := memmod.Read[uint64](addressArg(state, 1))
			if v > maxExactInt {
				state.PushString(strconv.FormatUint(v, 10))
			} else {
				state.PushNumber(float64(v))
			}
			return 1
		}},
		{Name: "readBytes", Function: func(state *lua.State) int {
			addr := addressArg(state, 1)
			n := lua.CheckInteger(state, 2)
			if n < 0 {
				lua.ArgumentError(state, 2, "non-negative count expected")
			}
			state.PushString(string(memmod.ReadBytes(addr, n)))
			return 1
		}},

		{Name: "writeByte", Function: writeInteger[int8]},
		{Name: "writeUByte", Function: writeInteger[uint8]},
		{Name: "writeShort", Function: writeInteger[int16]},
		{Name: "writeUShort", Function: writeInteger[uint16]},
		{Name: "writeInt", Function: writeInteger[int32]},
		{Name: "writeUInt", Function: writeInteger[uint32]},
		{Name: "writeLong", Function: func(state *lua.State) int {
			memmod.Write(addressArg(state, 1), int64Arg(state, 2))
			return 0
		}},
		{Name: "writeULong", Function: func(state *lua.State) int {
			memmod.Write(addressArg(state, 1), uint64Arg(state, 2))
			return 0
		}},
		{Name: "writeFloat", Function: func(state *lua.State) int {
			memmod.Write(addressArg(state, 1), float32(lua.CheckNumber(state, 2)))
			return 0
		}},
		{Name: "writeDouble", Function: func(state *lua.State) int {
			memmod.Write(addressArg(state, 1), lua.CheckNumber(state, 2))
			return 0
		}},
		{Name: "writeBytes", Function: func(state *lua.State) int {
			memmod.WriteBytes(addressArg(state, 1), []byte(lua.CheckString(state, 2)))
			return 0
		}},
	}

	state.NewTable()
	lua.SetFunctions(state, funcs, 0)
	state.SetGlobal("memory")
}

// memory.getAddress(obj) returns the address of a handle's slot or a
// vector's first component.
func memoryGetAddress(state *lua.State) int {
	switch v := state.ToUserData(1).(type) {
	case entity.Handle:
		if !v.Live() {
			return raise(state, entity.ErrInvalidHandle)
		}
		state.PushNumber(float64(v.Addr()))
	case *entity.Vector:
		if v.Owned() {
			lua.ArgumentError(state, 1, "vector is not in host memory")
		}
		state.PushNumber(float64(v.Addr()))
	case *entity.RotMatrix:
		if v.Owned() {
			lua.ArgumentError(state, 1, "matrix is not in host memory")
		}
		state.PushNumber(float64(v.Addr()))
	default:
		lua.ArgumentError(state, 1, "handle, Vector or RotMatrix expected")
	}
	return 1
}

type smallNumber interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~float32 | ~float64
}

func readNumber[T smallNumber](state *lua.State) int {
	state.PushNumber(float64(memmod.Read[T](addressArg(state, 1))))
	return 1
}

func writeInteger[T ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32](state *lua.State) int {
	addr := addressArg(state, 1)
	memmod.Write(addr, T(int64Arg(state, 2)))
	return 0
}
