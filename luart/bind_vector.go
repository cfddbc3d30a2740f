package luart

import (
	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/entity"
)

var rotFields = map[string]int{
	"x1": 0, "y1": 1, "z1": 2,
	"x2": 3, "y2": 4, "z2": 5,
	"x3": 6, "y3": 7, "z3": 8,
}

var vecFields = map[string]int{"x": 0, "y": 1, "z": 2}

func checkVector(state *lua.State, index int) *entity.Vector {
	return lua.CheckUserData(state, index, vectorType).(*entity.Vector)
}

func checkRot(state *lua.State, index int) *entity.RotMatrix {
	return lua.CheckUserData(state, index, rotType).(*entity.RotMatrix)
}

func (r *Runtime) registerVector(state *lua.State) {
	vectorMethods := map[string]lua.Function{
		"add": func(state *lua.State) int {
			checkVector(state, 1).Add(checkVector(state, 2))
			return 0
		},
		"mult": func(state *lua.State) int {
			checkVector(state, 1).Scale(float32(lua.CheckNumber(state, 2)))
			return 0
		},
		"set": func(state *lua.State) int {
			checkVector(state, 1).CopyFrom(checkVector(state, 2))
			return 0
		},
		"clone": func(state *lua.State) int {
			r.push(state, checkVector(state, 1).Clone())
			return 1
		},
		"dist": func(state *lua.State) int {
			state.PushNumber(float64(checkVector(state, 1).Dist(checkVector(state, 2))))
			return 1
		},
		"distSquare": func(state *lua.State) int {
			state.PushNumber(float64(checkVector(state, 1).DistSquare(checkVector(state, 2))))
			return 1
		},
		"length": func(state *lua.State) int {
			state.PushNumber(float64(checkVector(state, 1).Length()))
			return 1
		},
	}

	lua.NewMetaTable(state, vectorType)
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "__index", Function: func(state *lua.State) int {
			v := checkVector(state, 1)
			key := lua.CheckString(state, 2)
			if i, ok := vecFields[key]; ok {
				state.PushNumber(float64(v.Component(i)))
				return 1
			}
			if key == "class" {
				state.PushString("Vector")
				return 1
			}
			if fn, ok := vectorMethods[key]; ok {
				state.PushGoFunction(fn)
				return 1
			}
			state.PushNil()
			return 1
		}},
		{Name: "__newindex", Function: func(state *lua.State) int {
			v := checkVector(state, 1)
			i, ok := vecFields[lua.CheckString(state, 2)]
			if !ok {
				lua.ArgumentError(state, 2, "x, y or z expected")
			}
			v.SetComponent(i, float32(lua.CheckNumber(state, 3)))
			return 0
		}},
		{Name: "__tostring", Function: func(state *lua.State) int {
			state.PushString(checkVector(state, 1).String())
			return 1
		}},
		{Name: "__add", Function: func(state *lua.State) int {
			out := checkVector(state, 1).Clone()
			out.Add(checkVector(state, 2))
			r.push(state, out)
			return 1
		}},
		{Name: "__sub", Function: func(state *lua.State) int {
			out := checkVector(state, 2).Clone()
			out.Scale(-1)
			out.Add(checkVector(state, 1))
			r.push(state, out)
			return 1
		}},
		{Name: "__mul", Function: func(state *lua.State) int {
			if state.IsNumber(1) {
				state.Insert(1)
			}
			v := checkVector(state, 1)
			if m, ok := lua.TestUserData(state, 2, rotType).(*entity.RotMatrix); ok {
				r.push(state, v.Rotate(m))
				return 1
			}
			out := v.Clone()
			out.Scale(float32(lua.CheckNumber(state, 2)))
			r.push(state, out)
			return 1
		}},
		{Name: "__div", Function: func(state *lua.State) int {
			out := checkVector(state, 1).Clone()
			out.Scale(1 / float32(lua.CheckNumber(state, 2)))
			r.push(state, out)
			return 1
		}},
		{Name: "__unm", Function: func(state *lua.State) int {
			out := checkVector(state, 1).Clone()
			out.Scale(-1)
			r.push(state, out)
			return 1
		}},
	}, 0)
	state.Pop(1)

	rotMethods := map[string]lua.Function{
		"set": func(state *lua.State) int {
			checkRot(state, 1).CopyFrom(checkRot(state, 2))
			return 0
		},
		"clone": func(state *lua.State) int {
			r.push(state, checkRot(state, 1).Clone())
			return 1
		},
		"getRight": func(state *lua.State) int {
			r.push(state, checkRot(state, 1).Row(0))
			return 1
		},
		"getUp": func(state *lua.State) int {
			r.push(state, checkRot(state, 1).Row(1))
			return 1
		},
		"getForward": func(state *lua.State) int {
			r.push(state, checkRot(state, 1).Row(2))
			return 1
		},
	}

	lua.NewMetaTable(state, rotType)
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "__index", Function: func(state *lua.State) int {
			m := checkRot(state, 1)
			key := lua.CheckString(state, 2)
			if i, ok := rotFields[key]; ok {
				state.PushNumber(float64(m.At(i)))
				return 1
			}
			if key == "class" {
				state.PushString("RotMatrix")
				return 1
			}
			if fn, ok := rotMethods[key]; ok {
				state.PushGoFunction(fn)
				return 1
			}
			state.PushNil()
			return 1
		}},
		{Name: "__newindex", Function: func(state *lua.State) int {
			m := checkRot(state, 1)
			i, ok := rotFields[lua.CheckString(state, 2)]
			if !ok {
				lua.ArgumentError(state, 2, "x1 through z3 expected")
			}
			m.SetAt(i, float32(lua.CheckNumber(state, 3)))
			return 0
		}},
		{Name: "__tostring", Function: func(state *lua.State) int {
			state.PushString(checkRot(state, 1).String())
			return 1
		}},
		{Name: "__mul", Function: func(state *lua.State) int {
			r.push(state, checkRot(state, 1).Mul(checkRot(state, 2)))
			return 1
		}},
	}, 0)
	state.Pop(1)

	state.Register("Vector", func(state *lua.State) int {
		r.push(state, entity.NewVector(
			float32(lua.OptNumber(state, 1, 0)),
			float32(lua.OptNumber(state, 2, 0)),
			float32(lua.OptNumber(state, 3, 0)),
		))
		return 1
	})
	state.Register("RotMatrix", func(state *lua.State) int {
		var values [9]float32
		for i := range values {
			values[i] = float32(lua.CheckNumber(state, i+1))
		}
		r.push(state, entity.NewRotMatrix(values))
		return 1
	})
}
