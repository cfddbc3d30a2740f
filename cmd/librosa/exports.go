//go:build linux && cgo && amd64

package main

/*
#include <stdint.h>
#include <stdlib.h>

extern uintptr_t rosa_interceptor(const char *event);
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/sliverarmory/rosaserver"
	"github.com/sliverarmory/rosaserver/config"
	"github.com/sliverarmory/rosaserver/intercept"
	"github.com/sliverarmory/rosaserver/logging"
)

var (
	server *rosaserver.Server
	disp   *intercept.Dispatcher
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[RS] fatal: %v\n", err)
	os.Exit(1)
}

func interceptors() map[string]uintptr {
	out := make(map[string]uintptr, len(intercept.Targets))
	for _, t := range intercept.Targets {
		name := C.CString(t.Event)
		out[t.Event] = uintptr(C.rosa_interceptor(name))
		C.free(unsafe.Pointer(name))
	}
	return out
}

//export rosaAttach
func rosaAttach(bootstrap C.uintptr_t) {
	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	srv, err := rosaserver.Attach(rosaserver.Options{
		Config: cfg,
		Logger: logging.NewLogger(cfg.LogLevel, os.Stderr),
	})
	if err != nil {
		fatal(err)
	}
	if err := srv.InstallBootstrap(uintptr(bootstrap)); err != nil {
		fatal(err)
	}
	server, disp = srv, srv.Dispatcher()
}

//export rosaGetPaths
func rosaGetPaths() {
	if err := server.GetPaths(interceptors()); err != nil {
		fatal(err)
	}
}

// RosaResetState rebuilds the scripting runtime, or flags it for the next
// tick when called from inside a callback. It returns 0 on success.
//
//export RosaResetState
func RosaResetState() C.int {
	if disp == nil || disp.ResetState() != nil {
		return -1
	}
	return 0
}

//export rosaResetGame
func rosaResetGame() { disp.ResetGame() }

//export rosaLogic
func rosaLogic() { disp.Logic() }

//export rosaPhysics
func rosaPhysics() { disp.Physics() }

//export rosaAccountsSave
func rosaAccountsSave() { disp.AccountsSave() }

//export rosaPlayerChat
func rosaPlayerChat(player C.int, message C.uintptr_t) C.int {
	return C.int(disp.PlayerChat(int32(player), uintptr(message)))
}

//export rosaPlayerDeathTax
func rosaPlayerDeathTax(player C.int) { disp.PlayerDeathTax(int32(player)) }

//export rosaHumanDamage
func rosaHumanDamage(human, bone, unk, damage C.int) {
	disp.HumanDamage(int32(human), int32(bone), int32(unk), int32(damage))
}

//export rosaCreateBullet
func rosaCreateBullet(bulletType C.int, pos, vel C.uintptr_t, player C.int) C.int {
	return C.int(disp.CreateBullet(int32(bulletType), uintptr(pos), uintptr(vel), int32(player)))
}

//export rosaCreatePlayer
func rosaCreatePlayer() C.int { return C.int(disp.CreatePlayer()) }

//export rosaDeletePlayer
func rosaDeletePlayer(id C.int) { disp.DeletePlayer(int32(id)) }

//export rosaCreateHuman
func rosaCreateHuman(pos, rot C.uintptr_t, player C.int) C.int {
	return C.int(disp.CreateHuman(uintptr(pos), uintptr(rot), int32(player)))
}

//export rosaDeleteHuman
func rosaDeleteHuman(id C.int) { disp.DeleteHuman(int32(id)) }

//export rosaCreateItem
func rosaCreateItem(itemType C.int, pos, vel, rot C.uintptr_t) C.int {
	return C.int(disp.CreateItem(int32(itemType), uintptr(pos), uintptr(vel), uintptr(rot)))
}

//export rosaDeleteItem
func rosaDeleteItem(id C.int) { disp.DeleteItem(int32(id)) }

//export rosaCreateVehicle
func rosaCreateVehicle(vehicleType C.int, pos, rot C.uintptr_t, color C.int) C.int {
	return C.int(disp.CreateVehicle(int32(vehicleType), uintptr(pos), uintptr(rot), int32(color)))
}

//export rosaDeleteVehicle
func rosaDeleteVehicle(id C.int) { disp.DeleteVehicle(int32(id)) }

//export rosaLogicRace
func rosaLogicRace() { disp.LogicRace() }

//export rosaLogicRound
func rosaLogicRound() { disp.LogicRound() }

//export rosaLogicWorld
func rosaLogicWorld() { disp.LogicWorld() }

//export rosaLogicTerminator
func rosaLogicTerminator() { disp.LogicTerminator() }

//export rosaLogicCoop
func rosaLogicCoop() { disp.LogicCoop() }

//export rosaLogicVersus
func rosaLogicVersus() { disp.LogicVersus() }

//export rosaPlayerActions
func rosaPlayerActions(player C.int) { disp.PlayerActions(int32(player)) }

//export rosaPhysicsRigidBodies
func rosaPhysicsRigidBodies() { disp.PhysicsRigidBodies() }

//export rosaPhysicsBullets
func rosaPhysicsBullets() { disp.PhysicsBullets() }

//export rosaServerReceive
func rosaServerReceive() C.int { return C.int(disp.ServerReceive()) }

//export rosaServerSend
func rosaServerSend() { disp.ServerSend() }

//export rosaEconomyCarMarket
func rosaEconomyCarMarket() { disp.EconomyCarMarket() }

//export rosaAccountTicket
func rosaAccountTicket(identifier C.int, ticket C.uint) C.int {
	return C.int(disp.AccountTicket(int32(identifier), uint32(ticket)))
}

//export rosaSendConnectResponse
func rosaSendConnectResponse(address, port C.uint, unk C.int, message C.uintptr_t) {
	disp.SendConnectResponse(uint32(address), uint32(port), int32(unk), uintptr(message))
}

//export rosaItemLink
func rosaItemLink(item, child, parentHuman, slot C.int) C.int {
	return C.int(disp.ItemLink(int32(item), int32(child), int32(parentHuman), int32(slot)))
}

//export rosaItemComputerInput
func rosaItemComputerInput(item C.int, character C.uint) {
	disp.ItemComputerInput(int32(item), uint32(character))
}

//export rosaHumanCollisionVehicle
func rosaHumanCollisionVehicle(human, vehicle C.int) {
	disp.HumanCollisionVehicle(int32(human), int32(vehicle))
}

//export rosaHumanGrabbing
func rosaHumanGrabbing(human C.int) { disp.HumanGrabbing(int32(human)) }

//export rosaGrenadeExplode
func rosaGrenadeExplode(item C.int) { disp.GrenadeExplode(int32(item)) }

//export rosaPlayerAI
func rosaPlayerAI(player C.int) { disp.PlayerAI(int32(player)) }

//export rosaPlayerGiveWantedLevel
func rosaPlayerGiveWantedLevel(player, victim, basePoints C.int) {
	disp.PlayerGiveWantedLevel(int32(player), int32(victim), int32(basePoints))
}

//export rosaCollideBodies
func rosaCollideBodies(a, b C.int, aLocal, bLocal, normal C.uintptr_t, f1, f2, f3, f4 C.float) {
	disp.CollideBodies(int32(a), int32(b), uintptr(aLocal), uintptr(bLocal), uintptr(normal),
		[4]float32{float32(f1), float32(f2), float32(f3), float32(f4)})
}

//export rosaCreateRigidBody
func rosaCreateRigidBody(bodyType C.int, pos, rot, vel, scale C.uintptr_t, mass C.float) C.int {
	return C.int(disp.CreateRigidBody(int32(bodyType), uintptr(pos), uintptr(rot), uintptr(vel), uintptr(scale), float32(mass)))
}

//export rosaEventMessage
func rosaEventMessage(speakerType C.int, message C.uintptr_t, speakerID, distance C.int) {
	disp.EventMessage(int32(speakerType), uintptr(message), int32(speakerID), int32(distance))
}

//export rosaEventUpdatePlayer
func rosaEventUpdatePlayer(player C.int) { disp.EventUpdatePlayer(int32(player)) }

//export rosaEventUpdateVehicle
func rosaEventUpdateVehicle(vehicle, updateType, partID C.int, pos, normal C.uintptr_t) {
	disp.EventUpdateVehicle(int32(vehicle), int32(updateType), int32(partID), uintptr(pos), uintptr(normal))
}

//export rosaEventBullet
func rosaEventBullet(bulletType C.int, pos, vel C.uintptr_t, item C.int) {
	disp.EventBullet(int32(bulletType), uintptr(pos), uintptr(vel), int32(item))
}

//export rosaEventBulletHit
func rosaEventBulletHit(unk, hitType C.int, pos, normal C.uintptr_t) {
	disp.EventBulletHit(int32(unk), int32(hitType), uintptr(pos), uintptr(normal))
}

//export rosaLineIntersectHuman
func rosaLineIntersectHuman(human C.int, posA, posB C.uintptr_t) C.int {
	return C.int(disp.LineIntersectHuman(int32(human), uintptr(posA), uintptr(posB)))
}

//export rosaAreaCreateBlock
func rosaAreaCreateBlock(zero, x, y, z C.int, flags C.uint, unk C.short) {
	disp.AreaCreateBlock(int32(zero), int32(x), int32(y), int32(z), uint32(flags), int16(unk))
}

//export rosaAreaDeleteBlock
func rosaAreaDeleteBlock(zero, x, y, z C.int) {
	disp.AreaDeleteBlock(int32(zero), int32(x), int32(y), int32(z))
}

//export rosaConsolePuts
func rosaConsolePuts(line C.uintptr_t) C.int { return C.int(disp.ConsolePuts(uintptr(line))) }

// rosaConsolePrintf receives __printf_chk output already formatted by
// rosa_printf_chk.
//
//export rosaConsolePrintf
func rosaConsolePrintf(flag C.int, text C.uintptr_t) C.int {
	return C.int(disp.ConsolePrintf(int32(flag), uintptr(text)))
}
