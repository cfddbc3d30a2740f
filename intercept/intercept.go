// Package intercept holds the Go side of every host interceptor. Each
// method runs one intercepted host call: it fires the script event, calls
// the original through the hook's trampoline unless a callback suppressed
// it, and fires the Post event.
//
// The C ABI entry points live in cmd/librosa; they only convert arguments
// and call into a Dispatcher.
package intercept

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sliverarmory/rosaserver/entity"
	"github.com/sliverarmory/rosaserver/hook"
	"github.com/sliverarmory/rosaserver/logging"
	"github.com/sliverarmory/rosaserver/luart"
	"github.com/sliverarmory/rosaserver/memmod"
)

// Target pairs a script event with the host function it intercepts.
type Target struct {
	Event string
	Func  string
}

// Targets is every hooked host function, in install order.
var Targets = []Target{
	{Event: "ResetGame", Func: "resetGame"},
	{Event: "Logic", Func: "logicSimulation"},
	{Event: "Physics", Func: "physicsSimulation"},
	{Event: "AccountsSave", Func: "saveAccountsServer"},
	{Event: "PlayerChat", Func: "serverPlayerMessage"},
	{Event: "PlayerDeathTax", Func: "playerDeathTax"},
	{Event: "HumanDamage", Func: "humanApplyDamage"},
	{Event: "CreateBullet", Func: "createBullet"},
	{Event: "CreatePlayer", Func: "createPlayer"},
	{Event: "DeletePlayer", Func: "deletePlayer"},
	{Event: "CreateHuman", Func: "createHuman"},
	{Event: "DeleteHuman", Func: "deleteHuman"},
	{Event: "CreateItem", Func: "createItem"},
	{Event: "DeleteItem", Func: "deleteItem"},
	{Event: "CreateVehicle", Func: "createVehicle"},
	{Event: "DeleteVehicle", Func: "deleteVehicle"},

	{Event: "LogicRace", Func: "logicSimulationRace"},
	{Event: "LogicRound", Func: "logicSimulationRound"},
	{Event: "LogicWorld", Func: "logicSimulationWorld"},
	{Event: "LogicTerminator", Func: "logicSimulationTerminator"},
	{Event: "LogicCoop", Func: "logicSimulationCoop"},
	{Event: "LogicVersus", Func: "logicSimulationVersus"},
	{Event: "PlayerActions", Func: "logicPlayerActions"},
	{Event: "PhysicsRigidBodies", Func: "rigidBodySimulation"},
	{Event: "PhysicsBullets", Func: "bulletSimulation"},
	{Event: "ServerReceive", Func: "serverReceive"},
	{Event: "ServerSend", Func: "serverSend"},
	{Event: "EconomyCarMarket", Func: "economyCarMarket"},
	{Event: "AccountTicket", Func: "createAccountByJoinTicket"},
	{Event: "SendConnectResponse", Func: "serverSendConnectResponse"},
	{Event: "ItemLink", Func: "linkItem"},
	{Event: "ItemComputerInput", Func: "itemComputerInput"},
	{Event: "HumanCollisionVehicle", Func: "humanCollisionVehicle"},
	{Event: "HumanGrabbing", Func: "humanGrabbing"},
	{Event: "GrenadeExplode", Func: "grenadeExplosion"},
	{Event: "PlayerAI", Func: "playerAI"},
	{Event: "PlayerGiveWantedLevel", Func: "playerGiveWantedLevel"},
	{Event: "CollideBodies", Func: "addCollisionRigidBodyOnRigidBody"},
	{Event: "CreateRigidBody", Func: "createRigidBody"},
	{Event: "EventMessage", Func: "createEventMessage"},
	{Event: "EventUpdatePlayer", Func: "createEventUpdatePlayer"},
	{Event: "EventUpdateVehicle", Func: "createEventUpdateVehicle"},
	{Event: "EventBullet", Func: "createEventBullet"},
	{Event: "EventBulletHit", Func: "createEventBulletHit"},
	{Event: "LineIntersectHuman", Func: "lineIntersectHuman"},
	{Event: "AreaCreateBlock", Func: "areaCreateBlock"},
	{Event: "AreaDeleteBlock", Func: "areaDeleteBlock"},
	{Event: "ConsolePuts", Func: "subRosaPuts"},
	{Event: "ConsolePrintf", Func: "subRosaPrintfChk"},
}

// ErrNoInterceptor means Install was not given an entry point for a target.
var ErrNoInterceptor = errors.New("no interceptor for target")

// Dispatcher runs intercepted calls against one runtime.
type Dispatcher struct {
	rt     *luart.Runtime
	hooks  *hook.Manager
	reg    *entity.Registry
	caller memmod.Caller
	log    *slog.Logger

	booted atomic.Bool
}

func New(rt *luart.Runtime, hooks *hook.Manager, reg *entity.Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		rt:     rt,
		hooks:  hooks,
		reg:    reg,
		caller: reg.Caller(),
		log:    logging.Component(logger, "intercept"),
	}
}

// Install hooks every Target. interceptors maps event names to the native
// entry point that calls back into this Dispatcher.
func (d *Dispatcher) Install(interceptors map[string]uintptr) error {
	for _, t := range Targets {
		fn, ok := d.reg.Table().Func(t.Func)
		if !ok {
			return fmt.Errorf("install %s: layout has no function %q", t.Event, t.Func)
		}
		entry, ok := interceptors[t.Event]
		if !ok || entry == 0 {
			return fmt.Errorf("%w: %s", ErrNoInterceptor, t.Event)
		}
		if _, err := d.hooks.Install(t.Event, fn, entry); err != nil {
			return err
		}
		d.log.Debug("hook installed", "event", t.Event, "target", fmt.Sprintf("%#x", fn))
	}
	return nil
}

// run dispatches one call through the record for event. A missing record
// means the interceptor was reached without being installed, which only
// happens in a broken build; the call is dropped.
func (d *Dispatcher) run(event string, pre func() bool, call func(original uintptr), post func()) {
	rec, ok := d.hooks.Get(event)
	if !ok {
		d.log.Error("interceptor reached without a hook", "event", event)
		return
	}
	rec.Dispatch(pre, func() { call(rec.Original()) }, post)
}

// fire returns a pre phase that fires event with args.
func (d *Dispatcher) fire(event string, args ...any) func() bool {
	return func() bool { return d.rt.Fire(event, args...) }
}

// firePost returns a post phase that fires Post<event> with args.
func (d *Dispatcher) firePost(event string, args ...any) func() {
	return func() { d.rt.Fire("Post"+event, args...) }
}

// plain runs a host function that takes no arguments.
func (d *Dispatcher) plain(event string) {
	d.run(event,
		d.fire(event),
		func(original uintptr) { d.caller.Call(original) },
		d.firePost(event),
	)
}

// indexed runs a host function whose only argument is a slot of kind.
func (d *Dispatcher) indexed(event, kind string, id int32) {
	h := d.handle(kind, id)
	d.run(event,
		d.fire(event, h),
		func(original uintptr) { d.caller.Call(original, memmod.Arg(id)) },
		d.firePost(event, h),
	)
}

// callFloat calls original with float parameters. A caller that cannot pass
// them drops the call.
func (d *Dispatcher) callFloat(event string, original uintptr, args []uintptr, floats []float32) uintptr {
	ret, err := memmod.CallFloat(d.caller, original, args, floats)
	if err != nil {
		d.log.Error("original not called", "event", event, "err", err)
	}
	return ret
}

// handle is the live handle of slot i of kind, or nil.
func (d *Dispatcher) handle(kind string, i int32) any {
	k, ok := d.reg.Kind(kind)
	if !ok {
		return nil
	}
	h, err := k.Get(int(i))
	if err != nil {
		return nil
	}
	return h
}

func vectorArg(addr uintptr) any {
	if addr == 0 {
		return nil
	}
	return entity.VectorAt(addr)
}

func rotArg(addr uintptr) any {
	if addr == 0 {
		return nil
	}
	return entity.RotMatrixAt(addr)
}
