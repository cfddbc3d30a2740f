package intercept

import (
	"github.com/sliverarmory/rosaserver/luart"
	"github.com/sliverarmory/rosaserver/memmod"
)

// create runs a host create function. The slot it hands out may be a
// reused one, so its script data is dropped before PostCreate sees it.
// A suppressed create returns -1, as a full table does.
func (d *Dispatcher) create(event, kind string, pre func() bool, args func() []uintptr) int32 {
	id := int32(-1)
	d.run(event, pre,
		func(original uintptr) {
			id = memmod.Int32(d.caller.Call(original, args()...))
			if id >= 0 {
				d.rt.ClearSide(kind, int(id))
			}
		},
		func() { d.rt.Fire("Post"+event, d.handle(kind, id)) },
	)
	return id
}

// remove runs a host delete function and drops the slot's script data
// once the host has released it.
func (d *Dispatcher) remove(event, kind string, id int32) {
	d.run(event,
		func() bool { return d.rt.Fire(event, d.handle(kind, id)) },
		func(original uintptr) {
			d.caller.Call(original, memmod.Arg(id))
			d.rt.ClearSide(kind, int(id))
		},
		d.firePost(event, int64(id)),
	)
}

func (d *Dispatcher) CreatePlayer() int32 {
	return d.create("CreatePlayer", "players", d.fire("CreatePlayer"), func() []uintptr { return nil })
}

func (d *Dispatcher) DeletePlayer(id int32) {
	d.remove("DeletePlayer", "players", id)
}

// CreateHuman(pos, rot, player): pos and rot point into host memory and
// callbacks may edit them in place.
func (d *Dispatcher) CreateHuman(pos, rot uintptr, player int32) int32 {
	return d.create("CreateHuman", "humans",
		d.fire("CreateHuman", vectorArg(pos), rotArg(rot), d.handle("players", player)),
		func() []uintptr { return []uintptr{pos, rot, memmod.Arg(player)} },
	)
}

func (d *Dispatcher) DeleteHuman(id int32) {
	d.remove("DeleteHuman", "humans", id)
}

// CreateItem(type, pos, vel, rot): type is an Integer callbacks may change.
func (d *Dispatcher) CreateItem(itemType int32, pos, vel, rot uintptr) int32 {
	typ := &luart.Integer{Value: int64(itemType)}
	return d.create("CreateItem", "items",
		d.fire("CreateItem", typ, vectorArg(pos), vectorArg(vel), rotArg(rot)),
		func() []uintptr { return []uintptr{memmod.Arg(int32(typ.Value)), pos, vel, rot} },
	)
}

func (d *Dispatcher) DeleteItem(id int32) {
	d.remove("DeleteItem", "items", id)
}

// CreateVehicle(type, pos, rot, color): type and color are Integers.
func (d *Dispatcher) CreateVehicle(vehicleType int32, pos, rot uintptr, color int32) int32 {
	typ := &luart.Integer{Value: int64(vehicleType)}
	col := &luart.Integer{Value: int64(color)}
	return d.create("CreateVehicle", "vehicles",
		d.fire("CreateVehicle", typ, vectorArg(pos), rotArg(rot), col),
		func() []uintptr {
			return []uintptr{memmod.Arg(int32(typ.Value)), pos, rot, memmod.Arg(int32(col.Value))}
		},
	)
}

func (d *Dispatcher) DeleteVehicle(id int32) {
	d.remove("DeleteVehicle", "vehicles", id)
}

// CreateBullet(type, pos, vel, player): type is an Integer.
func (d *Dispatcher) CreateBullet(bulletType int32, pos, vel uintptr, player int32) int32 {
	typ := &luart.Integer{Value: int64(bulletType)}
	return d.create("CreateBullet", "bullets",
		d.fire("CreateBullet", typ, vectorArg(pos), vectorArg(vel), d.handle("players", player)),
		func() []uintptr { return []uintptr{memmod.Arg(int32(typ.Value)), pos, vel, memmod.Arg(player)} },
	)
}
