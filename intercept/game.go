package intercept

import (
	"errors"

	"github.com/sliverarmory/rosaserver/luart"
)

// ResetGame intercepts the host's game reset. The first call comes from
// engine init and builds the runtime; later ones are engine restarts.
func (d *Dispatcher) ResetGame() {
	reason := luart.ReasonEngineCall
	if d.booted.CompareAndSwap(false, true) {
		reason = luart.ReasonBoot
		if err := d.rt.Initialize(); err != nil && !errors.Is(err, luart.ErrScript) {
			d.log.Error("runtime initialization failed", "err", err)
		}
	}
	d.ResetGameFor(reason)
}

// ResetGameFor runs the host's game reset with reason passed to ResetGame
// callbacks. Scripts reach it through server.reset().
func (d *Dispatcher) ResetGameFor(reason luart.Reason) {
	d.run("ResetGame",
		d.fire("ResetGame", reason),
		func(original uintptr) { d.caller.Call(original) },
		d.firePost("ResetGame", reason),
	)
}

// Logic intercepts the per-tick game logic. A reset flagged since the last
// tick runs first, followed by a game reset carrying the same reason.
func (d *Dispatcher) Logic() {
	if reason, ok, err := d.rt.ServicePendingReset(); ok {
		if err != nil && !errors.Is(err, luart.ErrScript) {
			d.log.Error("pending reset failed", "reason", reason, "err", err)
		}
		d.ResetGameFor(reason)
	}
	d.run("Logic",
		d.fire("Logic"),
		func(original uintptr) { d.caller.Call(original) },
		d.firePost("Logic"),
	)
}

// The game mode tick functions run from inside Logic, one per mode.

func (d *Dispatcher) LogicRace()       { d.plain("LogicRace") }
func (d *Dispatcher) LogicRound()      { d.plain("LogicRound") }
func (d *Dispatcher) LogicWorld()      { d.plain("LogicWorld") }
func (d *Dispatcher) LogicTerminator() { d.plain("LogicTerminator") }
func (d *Dispatcher) LogicCoop()       { d.plain("LogicCoop") }
func (d *Dispatcher) LogicVersus()     { d.plain("LogicVersus") }

// PlayerActions intercepts the processing of one player's queued actions.
func (d *Dispatcher) PlayerActions(player int32) { d.indexed("PlayerActions", "players", player) }

func (d *Dispatcher) Physics() { d.plain("Physics") }

func (d *Dispatcher) PhysicsRigidBodies() { d.plain("PhysicsRigidBodies") }

func (d *Dispatcher) PhysicsBullets() { d.plain("PhysicsBullets") }

// EconomyCarMarket intercepts the periodic car market update.
func (d *Dispatcher) EconomyCarMarket() { d.plain("EconomyCarMarket") }

// AccountsSave intercepts the host writing its account database.
func (d *Dispatcher) AccountsSave() { d.plain("AccountsSave") }

// ResetState rebuilds the runtime on request from outside the scripts. From
// inside a callback the reset waits for the next tick.
func (d *Dispatcher) ResetState() error {
	deferred, err := d.rt.ResetOrDefer(luart.ReasonEngineCall)
	if err != nil && !errors.Is(err, luart.ErrScript) {
		return err
	}
	if deferred {
		d.log.Info("state reset deferred to next tick")
	}
	return nil
}
