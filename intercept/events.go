package intercept

import (
	"github.com/sliverarmory/rosaserver/luart"
	"github.com/sliverarmory/rosaserver/memmod"
)

// The createEvent functions queue a network event for every client.
// Suppressing one keeps it off the wire.

// EventMessage intercepts createEventMessage(speakerType, message,
// speakerID, distance).
func (d *Dispatcher) EventMessage(speakerType int32, message uintptr, speakerID, distance int32) {
	typ := &luart.Integer{Value: int64(speakerType)}
	speaker := &luart.Integer{Value: int64(speakerID)}
	dist := &luart.Integer{Value: int64(distance)}
	text := memmod.CStringFromPtr(message)
	d.run("EventMessage",
		d.fire("EventMessage", typ, text, speaker, dist),
		func(original uintptr) {
			d.caller.Call(original,
				memmod.Arg(int32(typ.Value)), message, memmod.Arg(int32(speaker.Value)), memmod.Arg(int32(dist.Value)))
		},
		func() { d.rt.Fire("PostEventMessage", typ.Value, text, speaker.Value, dist.Value) },
	)
}

func (d *Dispatcher) EventUpdatePlayer(player int32) {
	d.indexed("EventUpdatePlayer", "players", player)
}

// EventUpdateVehicle intercepts createEventUpdateVehicle(vehicle,
// updateType, partID, pos, normal).
func (d *Dispatcher) EventUpdateVehicle(vehicle, updateType, partID int32, pos, normal uintptr) {
	h := d.handle("vehicles", vehicle)
	typ := &luart.Integer{Value: int64(updateType)}
	part := &luart.Integer{Value: int64(partID)}
	d.run("EventUpdateVehicle",
		d.fire("EventUpdateVehicle", h, typ, part, vectorArg(pos), vectorArg(normal)),
		func(original uintptr) {
			d.caller.Call(original,
				memmod.Arg(vehicle), memmod.Arg(int32(typ.Value)), memmod.Arg(int32(part.Value)), pos, normal)
		},
		func() { d.rt.Fire("PostEventUpdateVehicle", h, typ.Value, part.Value, vectorArg(pos), vectorArg(normal)) },
	)
}

// EventBullet intercepts createEventBullet(bulletType, pos, vel, item).
func (d *Dispatcher) EventBullet(bulletType int32, pos, vel uintptr, item int32) {
	typ := &luart.Integer{Value: int64(bulletType)}
	h := d.handle("items", item)
	d.run("EventBullet",
		d.fire("EventBullet", typ, vectorArg(pos), vectorArg(vel), h),
		func(original uintptr) {
			d.caller.Call(original, memmod.Arg(int32(typ.Value)), pos, vel, memmod.Arg(item))
		},
		func() { d.rt.Fire("PostEventBullet", typ.Value, vectorArg(pos), vectorArg(vel), h) },
	)
}

// EventBulletHit intercepts createEventBulletHit(unk, hitType, pos, normal).
func (d *Dispatcher) EventBulletHit(unk, hitType int32, pos, normal uintptr) {
	typ := &luart.Integer{Value: int64(hitType)}
	d.run("EventBulletHit",
		d.fire("EventBulletHit", typ, vectorArg(pos), vectorArg(normal)),
		func(original uintptr) {
			d.caller.Call(original, memmod.Arg(unk), memmod.Arg(int32(typ.Value)), pos, normal)
		},
		func() { d.rt.Fire("PostEventBulletHit", typ.Value, vectorArg(pos), vectorArg(normal)) },
	)
}
