package intercept

import (
	"github.com/sliverarmory/rosaserver/luart"
	"github.com/sliverarmory/rosaserver/memmod"
)

// HumanDamage intercepts humanApplyDamage(human, bone, unk, damage).
// Callbacks get bone and damage as Integers and may rewrite either.
func (d *Dispatcher) HumanDamage(human, bone, unk, damage int32) {
	h := d.handle("humans", human)
	b := &luart.Integer{Value: int64(bone)}
	dmg := &luart.Integer{Value: int64(damage)}
	d.run("HumanDamage",
		d.fire("HumanDamage", h, b, dmg),
		func(original uintptr) {
			d.caller.Call(original, memmod.Arg(human), memmod.Arg(int32(b.Value)), memmod.Arg(unk), memmod.Arg(int32(dmg.Value)))
		},
		func() { d.rt.Fire("PostHumanDamage", h, b.Value, dmg.Value) },
	)
}

// PlayerChat intercepts serverPlayerMessage(player, message). A suppressed
// message never reaches the host and the call reports it handled.
func (d *Dispatcher) PlayerChat(player int32, message uintptr) int32 {
	h := d.handle("players", player)
	text := memmod.CStringFromPtr(message)
	ret := int32(1)
	d.run("PlayerChat",
		d.fire("PlayerChat", h, text),
		func(original uintptr) {
			ret = memmod.Int32(d.caller.Call(original, memmod.Arg(player), message))
		},
		d.firePost("PlayerChat", h, text),
	)
	return ret
}

// PlayerDeathTax intercepts the fee charged when a player dies.
func (d *Dispatcher) PlayerDeathTax(player int32) {
	h := d.handle("players", player)
	d.run("PlayerDeathTax",
		d.fire("PlayerDeathTax", h),
		func(original uintptr) { d.caller.Call(original, memmod.Arg(player)) },
		d.firePost("PlayerDeathTax", h),
	)
}

// PlayerAI intercepts the per-tick think of one bot.
func (d *Dispatcher) PlayerAI(player int32) { d.indexed("PlayerAI", "players", player) }

// PlayerGiveWantedLevel intercepts playerGiveWantedLevel(player, victim,
// basePoints). basePoints is an Integer callbacks may change.
func (d *Dispatcher) PlayerGiveWantedLevel(player, victim, basePoints int32) {
	h, v := d.handle("players", player), d.handle("players", victim)
	points := &luart.Integer{Value: int64(basePoints)}
	d.run("PlayerGiveWantedLevel",
		d.fire("PlayerGiveWantedLevel", h, v, points),
		func(original uintptr) {
			d.caller.Call(original, memmod.Arg(player), memmod.Arg(victim), memmod.Arg(int32(points.Value)))
		},
		func() { d.rt.Fire("PostPlayerGiveWantedLevel", h, v, points.Value) },
	)
}

// HumanCollisionVehicle intercepts a human being hit by a vehicle.
func (d *Dispatcher) HumanCollisionVehicle(human, vehicle int32) {
	h, v := d.handle("humans", human), d.handle("vehicles", vehicle)
	d.run("HumanCollisionVehicle",
		d.fire("HumanCollisionVehicle", h, v),
		func(original uintptr) { d.caller.Call(original, memmod.Arg(human), memmod.Arg(vehicle)) },
		d.firePost("HumanCollisionVehicle", h, v),
	)
}

func (d *Dispatcher) HumanGrabbing(human int32) { d.indexed("HumanGrabbing", "humans", human) }
