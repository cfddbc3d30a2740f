// Package entitytest provides a fake host process image for testing code
// built on entity.Registry: an anonymous mapping laid out by a small layout
// that mirrors the real one, and a memmod.Caller that implements the host's
// create and delete functions against it.
package entitytest

import (
	"fmt"
	"sync"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sliverarmory/rosaserver/entity"
	"github.com/sliverarmory/rosaserver/layout"
	"github.com/sliverarmory/rosaserver/memmod"
)

// Layout is laid out within four pages. Function offsets are never
// executed; Host.Call dispatches on them by name.
const Layout = `
build: fake-host
globals:
  - {name: version, offset: 0x00, type: u32, readonly: true}
  - {name: name, offset: 0x04, type: cstr, size: 32}
  - {name: gravity, offset: 0x24, type: f32, pry: 1}
  - {name: state, offset: 0x28, type: i32}
  - {name: numBullets, offset: 0x2C, type: i32}
  - {name: time, offset: 0x30, type: i32}
  - {name: bigCounter, offset: 0x38, type: u64}
  - {name: pathA, offset: 0x40, type: cstr, size: 64, readonly: true}
  - {name: pathB, offset: 0x80, type: cstr, size: 64, readonly: true}
functions:
  - {name: getPaths, offset: 0x100}
  - {name: resetGame, offset: 0x108}
  - {name: logicSimulation, offset: 0x110}
  - {name: physicsSimulation, offset: 0x118}
  - {name: saveAccountsServer, offset: 0x120}
  - {name: serverPlayerMessage, offset: 0x128}
  - {name: playerDeathTax, offset: 0x130}
  - {name: humanApplyDamage, offset: 0x138}
  - {name: createBullet, offset: 0x140}
  - {name: createPlayer, offset: 0x148}
  - {name: deletePlayer, offset: 0x150}
  - {name: createHuman, offset: 0x158}
  - {name: deleteHuman, offset: 0x160}
  - {name: createItem, offset: 0x168}
  - {name: deleteItem, offset: 0x170}
  - {name: createVehicle, offset: 0x178}
  - {name: deleteVehicle, offset: 0x180}
  - {name: createEventUpdatePlayer, offset: 0x188}
  - {name: createEventUpdatePlayerFinance, offset: 0x190}
  - {name: subRosaPuts, offset: 0x198}
  - {name: subRosaPrintfChk, offset: 0x1A0}
  - {name: areaCreateBlock, offset: 0x1A8}
  - {name: areaDeleteBlock, offset: 0x1B0}
  - {name: logicSimulationRace, offset: 0x1B8}
  - {name: logicSimulationRound, offset: 0x1C0}
  - {name: logicSimulationWorld, offset: 0x1C8}
  - {name: logicSimulationTerminator, offset: 0x1D0}
  - {name: logicSimulationCoop, offset: 0x1D8}
  - {name: logicSimulationVersus, offset: 0x1E0}
  - {name: logicPlayerActions, offset: 0x1E8}
  - {name: rigidBodySimulation, offset: 0x1F0}
  - {name: serverReceive, offset: 0x1F8}
  - {name: serverSend, offset: 0x200}
  - {name: bulletSimulation, offset: 0x208}
  - {name: bulletTimeToLive, offset: 0x210}
  - {name: economyCarMarket, offset: 0x218}
  - {name: createAccountByJoinTicket, offset: 0x220}
  - {name: serverSendConnectResponse, offset: 0x228}
  - {name: linkItem, offset: 0x230}
  - {name: itemComputerInput, offset: 0x238}
  - {name: humanCollisionVehicle, offset: 0x240}
  - {name: humanGrabbing, offset: 0x248}
  - {name: grenadeExplosion, offset: 0x250}
  - {name: playerAI, offset: 0x258}
  - {name: playerGiveWantedLevel, offset: 0x260}
  - {name: addCollisionRigidBodyOnRigidBody, offset: 0x268}
  - {name: createRope, offset: 0x270}
  - {name: createRigidBody, offset: 0x278}
  - {name: createEventMessage, offset: 0x280}
  - {name: createEventUpdateVehicle, offset: 0x288}
  - {name: createEventSound, offset: 0x290}
  - {name: createEventExplosion, offset: 0x298}
  - {name: createEventBullet, offset: 0x2A0}
  - {name: createEventBulletHit, offset: 0x2A8}
  - {name: lineIntersectHuman, offset: 0x2B0}
  - {name: lineIntersectLevel, offset: 0x2B8}
  - {name: lineIntersectVehicle, offset: 0x2C0}
  - {name: lineIntersectTriangle, offset: 0x2C8}
arrays:
  - {name: accounts, struct: Account, offset: 0x400, stride: 0x40, capacity: 4, active: 0x0}
  - {name: players, struct: Player, offset: 0x500, stride: 0x60, capacity: 4, active: 0x0, create: createPlayer, remove: deletePlayer}
  - {name: humans, struct: Human, offset: 0x700, stride: 0x60, capacity: 4, active: 0x0, create: createHuman, remove: deleteHuman}
  - {name: itemTypes, struct: ItemType, offset: 0x900, stride: 0x40, capacity: 3}
  - {name: items, struct: Item, offset: 0xA00, stride: 0x40, capacity: 4, active: 0x0, create: createItem, remove: deleteItem}
  - {name: vehicles, struct: Vehicle, offset: 0xB00, stride: 0x40, capacity: 4, active: 0x0, create: createVehicle, remove: deleteVehicle}
  - {name: bullets, struct: Bullet, offset: 0xC00, stride: 0x20, capacity: 8, counter: numBullets, create: createBullet}
  - {name: rigidBodies, struct: RigidBody, offset: 0xD00, stride: 0x20, capacity: 4, active: 0x0}
  - {name: lineIntersectResults, struct: LineIntersectResult, offset: 0xD80, stride: 0x40, capacity: 1}
structs:
  Account:
    - {name: phoneNumber, offset: 0x04, type: i32}
    - {name: money, offset: 0x08, type: i32}
    - {name: name, offset: 0x10, type: cstr, size: 16}
  Player:
    - {name: name, offset: 0x04, type: cstr, size: 16}
    - {name: phoneNumber, offset: 0x14, type: u32}
    - {name: isBot, offset: 0x18, type: bool}
    - {name: human, offset: 0x1C, type: ref, kind: humans}
    - {name: account, offset: 0x20, type: ref, kind: accounts}
    - {name: money, offset: 0x24, type: i32}
  Human:
    - {name: player, offset: 0x08, type: ref, kind: players}
    - {name: health, offset: 0x0C, type: i32}
    - {name: pos, offset: 0x10, type: vec3}
    - {name: isImmortal, offset: 0x1C, type: bool}
    - {name: rot, offset: 0x20, type: rot}
  ItemType:
    - {name: name, offset: 0x00, type: cstr, size: 32}
    - {name: price, offset: 0x20, type: i32}
  Item:
    - {name: type, offset: 0x04, type: ref, kind: itemTypes}
    - {name: pos, offset: 0x08, type: vec3}
  Vehicle:
    - {name: color, offset: 0x04, type: u32}
    - {name: pos, offset: 0x08, type: vec3}
  Bullet:
    - {name: type, offset: 0x00, type: u32}
    - {name: pos, offset: 0x04, type: vec3}
  RigidBody:
    - {name: type, offset: 0x04, type: i32}
    - {name: pos, offset: 0x08, type: vec3}
  LineIntersectResult:
    - {name: pos, offset: 0x00, type: vec3}
    - {name: normal, offset: 0x0C, type: vec3}
    - {name: fraction, offset: 0x18, type: f32}
    - {name: vehicleFace, offset: 0x30, type: i32}
    - {name: humanBone, offset: 0x34, type: i32}
`

const pages = 4

// Call is one recorded host call.
type Call struct {
	Name   string
	Args   []uintptr
	Floats []float32
}

// Host is a fake process image. Its zero value is not usable; see NewHost.
type Host struct {
	Base     uintptr
	Table    *layout.Table
	Registry *entity.Registry

	mu       sync.Mutex
	names    map[uintptr]string
	handlers map[string]func(args ...uintptr) uintptr
	calls    []Call
}

// NewHost maps a zeroed image and resolves Layout against it.
func NewHost(t testing.TB) *Host {
	t.Helper()
	spec, err := layout.Parse([]byte(Layout))
	if err != nil {
		t.Fatalf("entitytest: parse layout: %v", err)
	}
	region, err := unix.Mmap(-1, 0, pages*int(memmod.PageSize()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		t.Fatalf("entitytest: mmap: %v", err)
	}
	t.Cleanup(func() { _ = unix.Munmap(region) })

	h := &Host{
		Base:     uintptr(unsafe.Pointer(&region[0])),
		names:    map[uintptr]string{},
		handlers: map[string]func(args ...uintptr) uintptr{},
	}
	h.Table = spec.Resolve(h.Base)
	for _, f := range spec.Functions {
		h.names[h.Table.MustFunc(f.Name)] = f.Name
	}
	h.Registry = entity.NewRegistry(h.Table, h)

	for _, a := range spec.Arrays {
		region, _ := h.Table.Array(a.Name)
		if a.Create != "" {
			h.handlers[a.Create] = h.allocator(region)
		}
		if a.Remove != "" {
			h.handlers[a.Remove] = h.releaser(region)
		}
	}
	return h
}

// Handle replaces the implementation of the named host function.
func (h *Host) Handle(name string, fn func(args ...uintptr) uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[name] = fn
}

// Call implements memmod.Caller. Unknown functions panic; functions without
// a handler return 0.
func (h *Host) Call(fn uintptr, args ...uintptr) uintptr {
	return h.CallFloat(fn, args, nil)
}

// CallFloat implements memmod.FloatCaller. Handlers only see the integer
// arguments; the floats are recorded.
func (h *Host) CallFloat(fn uintptr, args []uintptr, floats []float32) uintptr {
	h.mu.Lock()
	name, ok := h.names[fn]
	if !ok {
		h.mu.Unlock()
		panic(fmt.Sprintf("entitytest: call to unknown address %#x", fn))
	}
	h.calls = append(h.calls, Call{
		Name:   name,
		Args:   append([]uintptr(nil), args...),
		Floats: append([]float32(nil), floats...),
	})
	handler := h.handlers[name]
	h.mu.Unlock()

	if handler == nil {
		return 0
	}
	return handler(args...)
}

// Calls returns the recorded calls to name, oldest first.
func (h *Host) Calls(name string) []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Call
	for _, c := range h.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Activate marks slot i of an active-flag kind live.
func (h *Host) Activate(kind string, i int) uintptr {
	region, ok := h.Table.Array(kind)
	if !ok || region.Active == nil {
		panic("entitytest: " + kind + " has no active flag")
	}
	slot := region.Slot(i)
	memmod.Write[int32](slot+uintptr(*region.Active), 1)
	return slot
}

// Deactivate clears the active flag of slot i.
func (h *Host) Deactivate(kind string, i int) {
	region, ok := h.Table.Array(kind)
	if !ok || region.Active == nil {
		panic("entitytest: " + kind + " has no active flag")
	}
	memmod.Write[int32](region.Slot(i)+uintptr(*region.Active), 0)
}

// Fn is the fake address of a host function.
func (h *Host) Fn(name string) uintptr {
	return h.Table.MustFunc(name)
}

func (h *Host) allocator(region *layout.Region) func(args ...uintptr) uintptr {
	return func(args ...uintptr) uintptr {
		if region.Counter != nil {
			n := int(memmod.Read[int32](region.Counter.Addr))
			if n >= region.Capacity {
				return memmod.Arg(-1)
			}
			memmod.Write(region.Counter.Addr, int32(n+1))
			return uintptr(n)
		}
		for i := 0; i < region.Capacity; i++ {
			flag := region.Slot(i) + uintptr(*region.Active)
			if memmod.Read[int32](flag) == 0 {
				memmod.Write[int32](flag, 1)
				return uintptr(i)
			}
		}
		return memmod.Arg(-1)
	}
}

func (h *Host) releaser(region *layout.Region) func(args ...uintptr) uintptr {
	return func(args ...uintptr) uintptr {
		i := int(memmod.Int32(args[0]))
		memmod.Write[int32](region.Slot(i)+uintptr(*region.Active), 0)
		return 0
	}
}
