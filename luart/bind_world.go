package luart

import (
	"runtime"
	"unsafe"

	"github.com/Shopify/go-lua"

	"github.com/sliverarmory/rosaserver/entity"
	"github.com/sliverarmory/rosaserver/memmod"
)

// Speaker types of createEventMessage.
const (
	speakerAnnounce = 0
	speakerAdmins   = 4
)

// hostFunc is the address of the named host function. It raises when the
// layout does not have it.
func (r *Runtime) hostFunc(state *lua.State, name string) uintptr {
	reg := r.opts.Registry
	if reg == nil {
		raise(state, entity.ErrUnsupported)
		return 0
	}
	fn, ok := reg.Table().Func(name)
	if !ok {
		lua.Errorf(state, "%s: host function %s", entity.ErrUnsupported.Error(), name)
	}
	return fn
}

func (r *Runtime) call(fn uintptr, args ...uintptr) uintptr {
	return r.opts.Registry.Caller().Call(fn, args...)
}

// pinVector returns the address of the vector argument at index.
func pinVector(state *lua.State, index int, pins *runtime.Pinner) uintptr {
	v := checkVector(state, index)
	v.Pin(pins)
	return v.Addr()
}

// cString copies s into pinned NUL-terminated memory.
func cString(s string, pins *runtime.Pinner) uintptr {
	buf := append([]byte(s), 0)
	pins.Pin(&buf[0])
	return uintptr(unsafe.Pointer(&buf[0]))
}

func (r *Runtime) registerWorld(state *lua.State) {
	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "sound", Function: r.eventSound},
		{Name: "explosion", Function: func(state *lua.State) int {
			fn := r.hostFunc(state, "createEventExplosion")
			var pins runtime.Pinner
			defer pins.Unpin()
			r.call(fn, 0, pinVector(state, 1, &pins))
			return 0
		}},
		{Name: "bullet", Function: func(state *lua.State) int {
			fn := r.hostFunc(state, "createEventBullet")
			var pins runtime.Pinner
			defer pins.Unpin()
			r.call(fn,
				memmod.Arg(int32(lua.CheckInteger(state, 1))),
				pinVector(state, 2, &pins),
				pinVector(state, 3, &pins),
				memmod.Arg(int32(itemIndex(state, 4))),
			)
			return 0
		}},
		{Name: "bulletHit", Function: func(state *lua.State) int {
			fn := r.hostFunc(state, "createEventBulletHit")
			var pins runtime.Pinner
			defer pins.Unpin()
			r.call(fn, 0,
				memmod.Arg(int32(lua.CheckInteger(state, 1))),
				pinVector(state, 2, &pins),
				pinVector(state, 3, &pins),
			)
			return 0
		}},
	}, 0)
	state.SetGlobal("event")

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "lineIntersectLevel", Function: func(state *lua.State) int {
			fn := r.hostFunc(state, "lineIntersectLevel")
			var pins runtime.Pinner
			defer pins.Unpin()
			hit := r.call(fn, pinVector(state, 1, &pins), pinVector(state, 2, &pins))
			return r.pushIntersect(state, memmod.Int32(hit) != 0, "")
		}},
		{Name: "lineIntersectHuman", Function: func(state *lua.State) int {
			fn := r.hostFunc(state, "lineIntersectHuman")
			h := checkHandle(state, 1)
			var pins runtime.Pinner
			defer pins.Unpin()
			hit := r.call(fn, memmod.Arg(int32(h.Index())), pinVector(state, 2, &pins), pinVector(state, 3, &pins))
			return r.pushIntersect(state, memmod.Int32(hit) != 0, "humanBone")
		}},
		{Name: "lineIntersectVehicle", Function: func(state *lua.State) int {
			fn := r.hostFunc(state, "lineIntersectVehicle")
			h := checkHandle(state, 1)
			var pins runtime.Pinner
			defer pins.Unpin()
			hit := r.call(fn, memmod.Arg(int32(h.Index())), pinVector(state, 2, &pins), pinVector(state, 3, &pins), 0)
			return r.pushIntersect(state, memmod.Int32(hit) != 0, "vehicleFace")
		}},
		{Name: "lineIntersectTriangle", Function: r.lineIntersectTriangle},
		{Name: "garbageCollectBullets", Function: func(state *lua.State) int {
			r.call(r.hostFunc(state, "bulletTimeToLive"))
			return 0
		}},
		{Name: "createBlock", Function: func(state *lua.State) int {
			fn := r.hostFunc(state, "areaCreateBlock")
			r.call(fn, 0,
				memmod.Arg(int32(lua.CheckInteger(state, 1))),
				memmod.Arg(int32(lua.CheckInteger(state, 2))),
				memmod.Arg(int32(lua.CheckInteger(state, 3))),
				uintptr(uint32(lua.CheckInteger(state, 4))),
				0,
			)
			return 0
		}},
		{Name: "deleteBlock", Function: func(state *lua.State) int {
			fn := r.hostFunc(state, "areaDeleteBlock")
			r.call(fn, 0,
				memmod.Arg(int32(lua.CheckInteger(state, 1))),
				memmod.Arg(int32(lua.CheckInteger(state, 2))),
				memmod.Arg(int32(lua.CheckInteger(state, 3))),
			)
			return 0
		}},
	}, 0)
	state.SetGlobal("physics")

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{
		{Name: "announce", Function: func(state *lua.State) int {
			return r.message(state, speakerAnnounce, lua.CheckString(state, 1), -1, 0)
		}},
		{Name: "tellAdmins", Function: func(state *lua.State) int {
			return r.message(state, speakerAdmins, lua.CheckString(state, 1), -1, 0)
		}},
		{Name: "addRaw", Function: func(state *lua.State) int {
			return r.message(state,
				int32(lua.CheckInteger(state, 1)),
				lua.CheckString(state, 2),
				int32(lua.CheckInteger(state, 3)),
				int32(lua.CheckInteger(state, 4)),
			)
		}},
	}, 0)
	state.SetGlobal("chat")
}

// event.sound(type, pos[, volume[, pitch]]) plays a sound at pos.
func (r *Runtime) eventSound(state *lua.State) int {
	fn := r.hostFunc(state, "createEventSound")
	var pins runtime.Pinner
	defer pins.Unpin()
	args := []uintptr{memmod.Arg(int32(lua.CheckInteger(state, 1))), pinVector(state, 2, &pins)}
	floats := []float32{float32(lua.OptNumber(state, 3, 1)), float32(lua.OptNumber(state, 4, 1))}
	if _, err := memmod.CallFloat(r.opts.Registry.Caller(), fn, args, floats); err != nil {
		return raise(state, err)
	}
	return 0
}

func (r *Runtime) message(state *lua.State, speakerType int32, text string, speaker, distance int32) int {
	fn := r.hostFunc(state, "createEventMessage")
	var pins runtime.Pinner
	defer pins.Unpin()
	r.call(fn, memmod.Arg(speakerType), cString(text, &pins), memmod.Arg(speaker), memmod.Arg(distance))
	return 0
}

// itemIndex reads an optional item handle; nil is -1.
func itemIndex(state *lua.State, index int) int {
	if state.IsNoneOrNil(index) {
		return -1
	}
	return checkHandle(state, index).Index()
}

// pushIntersect pushes {hit = false} or the host's last intersection:
// {hit, pos, normal, fraction} plus extra when it names a result field.
func (r *Runtime) pushIntersect(state *lua.State, hit bool, extra string) int {
	state.NewTable()
	state.PushBoolean(hit)
	state.SetField(-2, "hit")
	if !hit {
		return 1
	}
	k, ok := r.opts.Registry.Kind("lineIntersectResults")
	if !ok {
		return 1
	}
	res, ok := k.Slot(0)
	if !ok {
		return 1
	}
	fields := []struct{ name, key string }{
		{"pos", "pos"},
		{"normal", "normal"},
		{"fraction", "fraction"},
	}
	switch extra {
	case "humanBone":
		fields = append(fields, struct{ name, key string }{extra, "bone"})
	case "vehicleFace":
		fields = append(fields, struct{ name, key string }{extra, "face"})
	}
	for _, f := range fields {
		v, err := res.Get(f.name)
		if err != nil {
			continue
		}
		if vec, isVec := v.(*entity.Vector); isVec {
			v = vec.Clone()
		}
		r.push(state, v)
		state.SetField(-2, f.key)
	}
	return 1
}

// physics.lineIntersectTriangle(posA, posB, triA, triB, triC) tests a
// segment against one triangle.
func (r *Runtime) lineIntersectTriangle(state *lua.State) int {
	fn := r.hostFunc(state, "lineIntersectTriangle")
	var pins runtime.Pinner
	defer pins.Unpin()

	pos, normal := entity.NewVector(0, 0, 0), entity.NewVector(0, 0, 0)
	pos.Pin(&pins)
	normal.Pin(&pins)
	fraction := new(float32)
	pins.Pin(fraction)

	hit := r.call(fn,
		pos.Addr(), normal.Addr(), uintptr(unsafe.Pointer(fraction)),
		pinVector(state, 1, &pins), pinVector(state, 2, &pins),
		pinVector(state, 3, &pins), pinVector(state, 4, &pins), pinVector(state, 5, &pins),
	)
	state.NewTable()
	state.PushBoolean(memmod.Int32(hit) != 0)
	state.SetField(-2, "hit")
	if memmod.Int32(hit) != 0 {
		r.push(state, pos)
		state.SetField(-2, "pos")
		r.push(state, normal)
		state.SetField(-2, "normal")
		state.PushNumber(float64(*fraction))
		state.SetField(-2, "fraction")
	}
	return 1
}
