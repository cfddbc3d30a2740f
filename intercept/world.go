package intercept

import (
	"github.com/sliverarmory/rosaserver/luart"
	"github.com/sliverarmory/rosaserver/memmod"
)

// AreaCreateBlock intercepts areaCreateBlock(zero, x, y, z, flags, unk),
// which places a level block. Callbacks get the block coordinates and flags.
func (d *Dispatcher) AreaCreateBlock(zero, x, y, z int32, flags uint32, unk int16) {
	d.run("AreaCreateBlock",
		d.fire("AreaCreateBlock", int64(x), int64(y), int64(z), int64(flags)),
		func(original uintptr) {
			d.caller.Call(original,
				memmod.Arg(zero), memmod.Arg(x), memmod.Arg(y), memmod.Arg(z), uintptr(flags), memmod.Arg(int32(unk)))
		},
		d.firePost("AreaCreateBlock", int64(x), int64(y), int64(z), int64(flags)),
	)
}

// AreaDeleteBlock intercepts areaDeleteBlock(zero, x, y, z).
func (d *Dispatcher) AreaDeleteBlock(zero, x, y, z int32) {
	d.run("AreaDeleteBlock",
		d.fire("AreaDeleteBlock", int64(x), int64(y), int64(z)),
		func(original uintptr) {
			d.caller.Call(original, memmod.Arg(zero), memmod.Arg(x), memmod.Arg(y), memmod.Arg(z))
		},
		d.firePost("AreaDeleteBlock", int64(x), int64(y), int64(z)),
	)
}

// LineIntersectHuman intercepts lineIntersectHuman(human, posA, posB). It
// returns non-zero on a hit; a suppressed test misses.
func (d *Dispatcher) LineIntersectHuman(human int32, posA, posB uintptr) int32 {
	h := d.handle("humans", human)
	var hit int32
	d.run("LineIntersectHuman",
		d.fire("LineIntersectHuman", h, vectorArg(posA), vectorArg(posB)),
		func(original uintptr) {
			hit = memmod.Int32(d.caller.Call(original, memmod.Arg(human), posA, posB))
		},
		func() { d.rt.Fire("PostLineIntersectHuman", h, vectorArg(posA), vectorArg(posB), hit != 0) },
	)
	return hit
}

// CollideBodies intercepts addCollisionRigidBodyOnRigidBody(a, b, aLocal,
// bLocal, normal, ...), which records a contact between two rigid bodies.
// The four float parameters reach callbacks as Floats.
func (d *Dispatcher) CollideBodies(a, b int32, aLocal, bLocal, normal uintptr, f [4]float32) {
	ha, hb := d.handle("rigidBodies", a), d.handle("rigidBodies", b)
	boxes := [4]*luart.Float{}
	for i, v := range f {
		boxes[i] = &luart.Float{Value: float64(v)}
	}
	d.run("CollideBodies",
		d.fire("CollideBodies", ha, hb, vectorArg(aLocal), vectorArg(bLocal), vectorArg(normal),
			boxes[0], boxes[1], boxes[2], boxes[3]),
		func(original uintptr) {
			floats := make([]float32, len(boxes))
			for i, box := range boxes {
				floats[i] = float32(box.Value)
			}
			d.callFloat("CollideBodies", original,
				[]uintptr{memmod.Arg(a), memmod.Arg(b), aLocal, bLocal, normal}, floats)
		},
		d.firePost("CollideBodies", ha, hb, vectorArg(aLocal), vectorArg(bLocal), vectorArg(normal)),
	)
}

// CreateRigidBody intercepts createRigidBody(type, pos, rot, vel, scale,
// mass). type and mass are boxes callbacks may change.
func (d *Dispatcher) CreateRigidBody(bodyType int32, pos, rot, vel, scale uintptr, mass float32) int32 {
	typ := &luart.Integer{Value: int64(bodyType)}
	m := &luart.Float{Value: float64(mass)}
	id := int32(-1)
	d.run("CreateRigidBody",
		d.fire("CreateRigidBody", typ, vectorArg(pos), rotArg(rot), vectorArg(vel), vectorArg(scale), m),
		func(original uintptr) {
			id = memmod.Int32(d.callFloat("CreateRigidBody", original,
				[]uintptr{memmod.Arg(int32(typ.Value)), pos, rot, vel, scale}, []float32{float32(m.Value)}))
			if id >= 0 {
				d.rt.ClearSide("rigidBodies", int(id))
			}
		},
		func() { d.rt.Fire("PostCreateRigidBody", d.handle("rigidBodies", id)) },
	)
	return id
}
