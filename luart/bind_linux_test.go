//go:build linux

package luart_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sliverarmory/rosaserver/collab"
	"github.com/sliverarmory/rosaserver/entity"
	"github.com/sliverarmory/rosaserver/luart"
	"github.com/sliverarmory/rosaserver/memmod"
)

// expectTrue evaluates each expression and fails on the ones that are not
// exactly true.
func (f *fixture) expectTrue(t *testing.T, exprs ...string) {
	t.Helper()
	for _, e := range exprs {
		f.eval(t, "__check = ("+e+")")
		if got := f.global(t, "__check"); got != true {
			t.Errorf("%s = %v, want true", e, got)
		}
	}
}

func mustKind(t *testing.T, f *fixture, name string) *entity.Kind {
	t.Helper()
	k, ok := f.host.Registry.Kind(name)
	if !ok {
		t.Fatalf("no kind %s", name)
	}
	return k
}

func mustGet(t *testing.T, f *fixture, kind string, i int) entity.Handle {
	t.Helper()
	h, err := mustKind(t, f, kind).Get(i)
	if err != nil {
		t.Fatalf("%s[%d]: %v", kind, i, err)
	}
	return h
}

func TestEntityBindings(t *testing.T) {
	f := newFixture(t, ``)
	f.host.Activate("players", 0)
	f.host.Activate("players", 2)
	f.host.Activate("humans", 1)
	f.init(t)

	p := mustGet(t, f, "players", 2)
	if err := p.Set("name", "alice"); err != nil {
		t.Fatal(err)
	}

	f.expectTrue(t,
		`players.getCount() == 2`,
		`#players == 2`,
		`#players.getAll() == 2`,
		`players.getAll()[2].index == 2`,
		`players[2].class == "Player"`,
		`players[2].name == "alice"`,
		`players[2] == players.getByIndex(2)`,
		`players[0] ~= players[2]`,
		`tostring(players[2]) == "Player(2)"`,
		`players[2].noSuchField == nil`,
		`players[2].isActive`,
		`not pcall(function() return players[1] end)`,
		`not pcall(function() return players[9] end)`,
		`players.create ~= nil and itemTypes.create == nil`,
	)

	f.eval(t, `
		local p = players[2]
		p.money = 50
		p.name = "bob"
		p.phoneNumber = "4000000000"
		p.isBot = true
		p.human = humans[1]
		humans[1].pos = Vector(1, 2, 3)
		humans[1].pos.x = 5
	`)
	tests := []struct {
		field string
		want  any
	}{
		{"money", int64(50)},
		{"name", "bob"},
		{"phoneNumber", int64(4000000000)},
		{"isBot", true},
	}
	for _, tt := range tests {
		got, err := p.Get(tt.field)
		if err != nil || got != tt.want {
			t.Errorf("%s = %v (%T), %v; want %v", tt.field, got, got, err, tt.want)
		}
	}
	if ref, _ := p.Get("human"); ref != mustGet(t, f, "humans", 1) {
		t.Errorf("human ref = %v", ref)
	}
	pos, _ := mustGet(t, f, "humans", 1).Get("pos")
	if x, y, z := pos.(*entity.Vector).Get(); x != 5 || y != 2 || z != 3 {
		t.Errorf("pos = %v, %v, %v; want 5, 2, 3", x, y, z)
	}
	f.expectTrue(t, `players[2].human.index == 1`, `players[2].human.pos.x == 5`)

	f.eval(t, `
		okType = pcall(function() players[2].money = "lots" end)
		okField = pcall(function() players[2].money = Vector() end)
	`)
	if f.global(t, "okType") != false || f.global(t, "okField") != false {
		t.Error("bad field assignments did not raise")
	}

	f.eval(t, `
		stale = players[2]
		stale:remove()
	`)
	if mustKind(t, f, "players").Live(2) {
		t.Fatal("remove did not release the slot")
	}
	if calls := f.host.Calls("deletePlayer"); len(calls) != 1 || memmod.Int32(calls[0].Args[0]) != 2 {
		t.Fatalf("deletePlayer calls = %+v", calls)
	}
	f.expectTrue(t,
		`not stale.isActive`,
		`not pcall(function() return stale.money end)`,
		`not pcall(function() stale.money = 1 end)`,
		`not pcall(function() return stale.data end)`,
		`itemTypes[0].remove == nil`,
	)
}

func TestCreateBindings(t *testing.T) {
	f := newFixture(t, ``)
	f.init(t)

	var seen [3]float32
	f.host.Handle("createItem", func(args ...uintptr) uintptr {
		seen = [3]float32{
			memmod.Read[float32](args[1]),
			memmod.Read[float32](args[1] + 4),
			memmod.Read[float32](args[1] + 8),
		}
		f.host.Activate("items", 3)
		return 3
	})

	f.expectTrue(t,
		`players.create().index == 0`,
		`items.create(itemTypes[1], Vector(1, 2, 3), nil, true).index == 3`,
	)
	calls := f.host.Calls("createItem")
	if len(calls) != 1 {
		t.Fatalf("createItem calls = %d", len(calls))
	}
	args := calls[0].Args
	if args[0] != 1 || args[2] != memmod.Arg(-1) || args[3] != 1 {
		t.Errorf("createItem args = %#x", args)
	}
	if seen != [3]float32{1, 2, 3} {
		t.Errorf("vector argument read as %v", seen)
	}

	f.expectTrue(t,
		`vehicles.create(1, Vector(), RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1), 0) ~= nil`,
		`vehicles.create(1) ~= nil and vehicles.create(1) ~= nil and vehicles.create(1) ~= nil`,
		`vehicles.create(1) == nil`,
		`#vehicles == 4`,
		`not pcall(items.create, 1.5)`,
		`not pcall(items.create, "x")`,
	)

	f.expectTrue(t,
		`bullets.create(1, Vector(), Vector(), 0).index == 0`,
		`bullets.create(1, Vector(), Vector(), 0).index == 1`,
		`#bullets == 2`,
		`server.numBullets == 2`,
	)
}

func TestLookupBindings(t *testing.T) {
	f := newFixture(t, ``)
	f.host.Activate("players", 0)
	f.host.Activate("players", 1)
	f.host.Activate("accounts", 3)
	f.init(t)

	bot := mustGet(t, f, "players", 0)
	_ = bot.Set("isBot", true)
	_ = mustGet(t, f, "players", 1).Set("phoneNumber", 2560001)
	_ = mustGet(t, f, "accounts", 3).Set("phoneNumber", 2560001)
	_ = mustGet(t, f, "itemTypes", 2).Set("name", "AK-47")

	f.expectTrue(t,
		`players.getByPhone(2560001).index == 1`,
		`players.getByPhone(7) == nil`,
		`accounts.getByPhone(2560001).index == 3`,
		`#players.getNonBots() == 1`,
		`players.getNonBots()[1].index == 1`,
		`itemTypes.getByName("AK-47").index == 2`,
		`itemTypes.getByName("M-16") == nil`,
		`humans.getByPhone == nil`,
	)

	f.eval(t, `accounts.save(); players[1]:update(); players[1]:updateFinance()`)
	if n := len(f.host.Calls("saveAccountsServer")); n != 1 {
		t.Errorf("saveAccountsServer calls = %d", n)
	}
	for _, name := range []string{"createEventUpdatePlayer", "createEventUpdatePlayerFinance"} {
		calls := f.host.Calls(name)
		if len(calls) != 1 || memmod.Int32(calls[0].Args[0]) != 1 {
			t.Errorf("%s calls = %+v", name, calls)
		}
	}
}

func TestServerBindings(t *testing.T) {
	var resets []luart.Reason
	f := newFixture(t, ``, func(o *luart.Options) {
		o.ResetGame = func(reason luart.Reason) { resets = append(resets, reason) }
	})
	global := func(name string) uintptr {
		v, ok := f.host.Table.Global(name)
		if !ok {
			t.Fatalf("no global %s", name)
		}
		return v.Addr
	}

	memmod.Write[float32](global("gravity"), 0.5)
	if err := f.host.Table.Locate(func(uintptr, int) error { return nil }); err != nil {
		t.Fatalf("Locate: %v", err)
	}
	memmod.Write[float32](global("gravity"), 2)
	memmod.Write[uint32](global("version"), 37)
	memmod.Write[uint64](global("bigCounter"), 1<<60)
	memmod.WriteCString(global("name"), 32, "Sub Rosa")
	f.init(t)

	f.expectTrue(t,
		`server.class == "Server"`,
		`server.TPS == 60`,
		`server.version == 37`,
		`server.gravity == 2`,
		`server.defaultGravity == 0.5`,
		`server.name == "Sub Rosa"`,
		`server.bigCounter == "1152921504606846976"`,
		`server.nothingHere == nil`,
		`not pcall(function() server.version = 38 end)`,
		`not pcall(function() server.nothingHere = 1 end)`,
		`not pcall(function() server.time = "soon" end)`,
	)

	f.eval(t, `
		server.state = STATE_GAME
		server.time = "77"
		server.gravity = 1
		server.bigCounter = "1152921504606846977"
		server.name = "Renamed"
		server:reset()
	`)
	if got := memmod.Read[int32](global("state")); got != 2 {
		t.Errorf("state = %d", got)
	}
	if got := memmod.Read[int32](global("time")); got != 77 {
		t.Errorf("time = %d", got)
	}
	if got := memmod.Read[float32](global("gravity")); got != 1 {
		t.Errorf("gravity = %v", got)
	}
	if got := memmod.Read[uint64](global("bigCounter")); got != 1<<60+1 {
		t.Errorf("bigCounter = %d", got)
	}
	if got := memmod.ReadCString(global("name"), 32); got != "Renamed" {
		t.Errorf("name = %q", got)
	}
	if len(resets) != 1 || resets[0] != luart.ReasonLuaCall {
		t.Errorf("resets = %v", resets)
	}

	f.eval(t, `server.bigCounter = "18446744073709551615"`)
	if got := memmod.Read[uint64](global("bigCounter")); got != 1<<64-1 {
		t.Errorf("bigCounter = %d, want max uint64", got)
	}
	f.expectTrue(t,
		`not pcall(function() server.bigCounter = -1 end)`,
		`not pcall(function() server.time = 2^40 end)`,
		`not pcall(function() server.time = "99999999999" end)`,
	)
	if got := memmod.Read[int32](global("time")); got != 77 {
		t.Errorf("out of range store changed time to %d", got)
	}
}

func TestServerResetUnavailable(t *testing.T) {
	f := newFixture(t, `ok, err = pcall(server.reset)`)
	f.init(t)
	if f.global(t, "ok") != false || !strings.Contains(f.global(t, "err").(string), "unavailable") {
		t.Fatal("server.reset without a ResetGame did not raise")
	}
}

func TestMemoryBindings(t *testing.T) {
	f := newFixture(t, ``)
	slot := f.host.Activate("humans", 0)
	f.init(t)

	scratch := f.host.Base + 0x3000
	f.eval(t, "scratch = "+hexAddr(scratch))
	f.eval(t, "base = "+hexAddr(f.host.Base))
	f.eval(t, "slot = "+hexAddr(slot))

	f.expectTrue(t,
		`memory.getBaseAddress() == base`,
		`memory.getAddress(humans[0]) == slot`,
		`memory.getAddress(humans[0].pos) == slot + 0x10`,
		`memory.getAddress(humans[0].rot) == slot + 0x20`,
		`not pcall(memory.getAddress, Vector())`,
		`not pcall(memory.getAddress, 12)`,
		`memory.toHexString(255) == "0xff"`,
		`not pcall(memory.readInt, 0)`,
		`not pcall(memory.readInt, 1.5)`,
	)

	f.eval(t, `memory.writeInt(slot + 0x0C, -5)`)
	if got, _ := mustGet(t, f, "humans", 0).Get("health"); got != int64(-5) {
		t.Fatalf("health = %v", got)
	}

	f.expectTrue(t,
		`memory.readInt(slot + 0x0C) == -5`,
		`memory.readUInt(slot + 0x0C) == 4294967291`,
		`(function() memory.writeByte(scratch, -1); return memory.readUByte(scratch) == 255 and memory.readByte(scratch) == -1 end)()`,
		`(function() memory.writeShort(scratch, -2); return memory.readUShort(scratch) == 65534 and memory.readShort(scratch) == -2 end)()`,
		`(function() memory.writeUInt(scratch, 4294967295); return memory.readInt(scratch) == -1 end)()`,
		`(function() memory.writeFloat(scratch, 1.5); return memory.readFloat(scratch) == 1.5 end)()`,
		`(function() memory.writeDouble(scratch, 0.1); return memory.readDouble(scratch) == 0.1 end)()`,
		`(function() memory.writeLong(scratch, -42); return memory.readLong(scratch) == -42 end)()`,
		`(function() memory.writeLong(scratch, "-9007199254740993"); return memory.readLong(scratch) == "-9007199254740993" end)()`,
		`(function() memory.writeULong(scratch, "18446744073709551615"); return memory.readULong(scratch) == "18446744073709551615" end)()`,
		`(function() memory.writeBytes(scratch, "abc\0d"); return memory.readBytes(scratch, 5) == "abc\0d" end)()`,
		`not pcall(memory.readBytes, scratch, -1)`,
	)
	if got := memmod.ReadBytes(scratch, 3); string(got) != "abc" {
		t.Fatalf("scratch = %q", got)
	}
}

func hexAddr(a uintptr) string { return fmt.Sprintf("%#x", a) }

func TestVectorBindings(t *testing.T) {
	f := newFixture(t, ``)
	f.init(t)
	f.expectTrue(t,
		`Vector().x == 0 and Vector().class == "Vector"`,
		`(Vector(1, 2, 3) + Vector(1, 1, 1)).x == 2`,
		`(Vector(1, 2, 3) - Vector(1, 1, 1)).z == 2`,
		`(Vector(1, 2, 3) * 2).y == 4`,
		`(2 * Vector(1, 2, 3)).z == 6`,
		`(Vector(2, 4, 6) / 2).x == 1`,
		`(-Vector(1, 2, 3)).y == -2`,
		`Vector(0, 0, 0):dist(Vector(3, 4, 0)) == 5`,
		`Vector(0, 0, 0):distSquare(Vector(3, 4, 0)) == 25`,
		`Vector(3, 4, 0):length() == 5`,
		`tostring(Vector(1, 2, 3)) == "Vector(1, 2, 3)"`,
		`(function() local v = Vector(1, 2, 3); v:add(Vector(1, 1, 1)); v:mult(2); return v.x == 4 and v.z == 8 end)()`,
		`(function() local v = Vector(); v:set(Vector(9, 8, 7)); local c = v:clone(); c.x = 1; return v.x == 9 and c.x == 1 end)()`,
		`not pcall(function() Vector().w = 1 end)`,
		`not pcall(function() return Vector() + 1 end)`,

		`RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1).y2 == 1`,
		`RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1).class == "RotMatrix"`,
		`(Vector(1, 2, 3) * RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1)).y == 2`,
		`(Vector(1, 0, 0) * RotMatrix(0, 1, 0, -1, 0, 0, 0, 0, 1)).y == 1`,
		`(RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1) * RotMatrix(0, 1, 0, -1, 0, 0, 0, 0, 1)).x2 == -1`,
		`RotMatrix(1, 2, 3, 4, 5, 6, 7, 8, 9):getForward().z == 9`,
		`RotMatrix(1, 2, 3, 4, 5, 6, 7, 8, 9):getRight().x == 1`,
		`RotMatrix(1, 2, 3, 4, 5, 6, 7, 8, 9):getUp().y == 5`,
		`tostring(RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1)) == "RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1)"`,
		`(function() local m = RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1); local c = m:clone(); c.x1 = 5; return m.x1 == 1 and c.x1 == 5 end)()`,
		`not pcall(RotMatrix, 1, 2)`,
	)
}

func TestBoxBindings(t *testing.T) {
	f := newFixture(t, `
		hook.add("Box", "b", function(i, u)
			okFloat = pcall(function() i.value = 1.5 end)
			okString = pcall(function() i.value = "x" end)
			u.value = "18446744073709551615"
			i.value = "-12"
		end)
	`)
	f.init(t)

	i := &luart.Integer{Value: 1}
	u := &luart.UnsignedInteger{}
	f.rt.Fire("Box", i, u)
	if i.Value != -12 || u.Value != 1<<64-1 {
		t.Fatalf("boxes = %d, %d", i.Value, u.Value)
	}
	if f.global(t, "okFloat") != false || f.global(t, "okString") != false {
		t.Fatal("invalid integer assignments accepted")
	}
}

func TestConstants(t *testing.T) {
	f := newFixture(t, ``)
	f.init(t)
	f.expectTrue(t,
		`STATE_PREGAME == 1 and STATE_GAME == 2 and STATE_RESTARTING == 3`,
		`TYPE_DRIVING == 1 and TYPE_VERSUS == 7`,
		`RESET_REASON_BOOT == 0 and RESET_REASON_ENGINECALL == 1`,
		`RESET_REASON_LUARESET == 2 and RESET_REASON_LUACALL == 3`,
		`FILE_WATCH_MODIFY == 2 and FILE_WATCH_CLOSE_WRITE == 8`,
		`FILE_WATCH_ONESHOT == 2147483648`,
	)
}

func TestOSBindings(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.lua"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	var exitCode = -1
	f := newFixture(t, ``, func(o *luart.Options) {
		o.Exit = func(code int) { exitCode = code }
	})
	f.init(t)
	f.eval(t, `dir = [[`+dir+`]]`)
	f.expectTrue(t,
		`#os.listDirectory(dir) == 2`,
		`os.listDirectory(dir)[1].stem == "a" and os.listDirectory(dir)[1].extension == ".lua"`,
		`not os.listDirectory(dir)[1].isDirectory and os.listDirectory(dir)[2].isDirectory`,
		`os.createDirectory(dir .. "/new/deep") == true`,
		`os.createDirectory(dir .. "/new/deep") == false`,
		`os.realClock() >= 0`,
		`not pcall(os.listDirectory, dir .. "/missing")`,
	)
	if _, err := os.Stat(filepath.Join(dir, "new", "deep")); err != nil {
		t.Fatalf("createDirectory: %v", err)
	}

	f.eval(t, `os.exit(3)`)
	if exitCode != 3 {
		t.Fatalf("exit code = %d", exitCode)
	}
}

type fakeImage struct {
	w, h, ch int
	px       map[[2]int][4]uint8
}

func (i *fakeImage) Width() int    { return i.w }
func (i *fakeImage) Height() int   { return i.h }
func (i *fakeImage) Channels() int { return i.ch }

func (i *fakeImage) At(x, y int) (uint8, uint8, uint8, uint8, error) {
	if x < 0 || y < 0 || x >= i.w || y >= i.h {
		return 0, 0, 0, 0, errors.New("out of bounds")
	}
	p, ok := i.px[[2]int{x, y}]
	if !ok {
		return 0, 0, 0, 255, nil
	}
	return p[0], p[1], p[2], p[3], nil
}

func (i *fakeImage) Set(x, y int, r, g, b, a uint8) error {
	if x < 0 || y < 0 || x >= i.w || y >= i.h {
		return errors.New("out of bounds")
	}
	i.px[[2]int{x, y}] = [4]uint8{r, g, b, a}
	return nil
}

func (i *fakeImage) PNG() ([]byte, error) { return []byte("\x89PNG"), nil }

type fakeWatcher struct {
	events []collab.WatchEvent
	closed bool
}

func (w *fakeWatcher) Add(path string, mask uint32) (int, error) {
	w.events = append(w.events, collab.WatchEvent{Descriptor: 1, Mask: mask, Name: filepath.Base(path)})
	return 1, nil
}

func (w *fakeWatcher) Remove(descriptor int) error {
	if descriptor != 1 {
		return errors.New("bad descriptor")
	}
	return nil
}

func (w *fakeWatcher) Receive() (collab.WatchEvent, bool, error) {
	if len(w.events) == 0 {
		return collab.WatchEvent{}, false, nil
	}
	ev := w.events[0]
	w.events = w.events[1:]
	return ev, true, nil
}

func (w *fakeWatcher) Close() error { w.closed = true; return nil }

type fakeChild struct {
	inbox      []string
	terminated int
}

func (c *fakeChild) Send(m string) error { c.inbox = append(c.inbox, "echo:"+m); return nil }

func (c *fakeChild) Receive() (string, bool, error) {
	if len(c.inbox) == 0 {
		return "", false, nil
	}
	m := c.inbox[0]
	c.inbox = c.inbox[1:]
	return m, true, nil
}

func (c *fakeChild) Running() bool { return c.terminated == 0 }

func (c *fakeChild) Terminate() error { c.terminated++; return nil }

type fakeHTTP struct {
	lastURL     string
	lastHeaders map[string]string
	lastBody    string
	lastType    string
}

func (h *fakeHTTP) Get(_ context.Context, url string, headers map[string]string) (*collab.HTTPResponse, error) {
	h.lastURL, h.lastHeaders = url, headers
	if strings.HasSuffix(url, "/fail") {
		return nil, errors.New("connection refused")
	}
	return &collab.HTTPResponse{Status: 200, Body: []byte("ok"), Headers: map[string]string{"Content-Type": "text/plain"}}, nil
}

func (h *fakeHTTP) Post(_ context.Context, url string, headers map[string]string, body []byte, contentType string) (*collab.HTTPResponse, error) {
	h.lastURL, h.lastHeaders, h.lastBody, h.lastType = url, headers, string(body), contentType
	return &collab.HTTPResponse{Status: 201}, nil
}

func TestCollabBindings(t *testing.T) {
	watcher := &fakeWatcher{}
	child := &fakeChild{}
	client := &fakeHTTP{}
	var spawned []string
	set := collab.Set{
		LoadImage: func(path string) (collab.Image, error) {
			if path != "map.png" {
				return nil, os.ErrNotExist
			}
			return &fakeImage{w: 2, h: 2, ch: 3, px: map[[2]int][4]uint8{{1, 1}: {10, 20, 30, 255}}}, nil
		},
		BlankImage: func(w, h, ch int) (collab.Image, error) {
			return &fakeImage{w: w, h: h, ch: ch, px: map[[2]int][4]uint8{}}, nil
		},
		Watch: func() (collab.FileWatcher, error) { return watcher, nil },
		Spawn: func(script string, args ...string) (collab.ChildProcess, error) {
			spawned = append([]string{script}, args...)
			return child, nil
		},
		HTTP: client,
	}
	f := newFixture(t, ``, func(o *luart.Options) { o.Collab = set })
	f.init(t)

	f.expectTrue(t,
		`Image().width == 0`,
		`not pcall(function() Image():getRGB(0, 0) end)`,
		`not pcall(function() Image():loadFromFile("missing.png") end)`,
		`(function() local i = Image(); i:loadFromFile("map.png"); local r, g, b = i:getRGB(1, 1); return i.width == 2 and i.numChannels == 3 and r == 10 and g == 20 and b == 30 end)()`,
		`(function() local i = Image(); i:loadBlank(4, 3); i:setPixel(2, 1, 1, 2, 3); local r, g, b, a = i:getRGBA(2, 1); return i.height == 3 and i.numChannels == 4 and b == 3 and a == 255 end)()`,
		`(function() local i = Image(); i:loadBlank(1, 1, 3); return i:getPNG() == "\137PNG" end)()`,
		`(function() local i = Image(); i:loadBlank(1, 1); i:free(); return i.width == 0 end)()`,
		`not pcall(function() local i = Image(); i:loadBlank(1, 1); i:setPixel(5, 5, 0, 0, 0) end)`,
	)

	f.eval(t, `
		w = FileWatcher()
		wd = w:addWatch("/tmp/x.lua", FILE_WATCH_MODIFY)
		ev = w:receiveEvent()
		none = w:receiveEvent()
		removed = w:removeWatch(wd)
		notRemoved = w:removeWatch(7)
	`)
	f.expectTrue(t,
		`wd == 1`,
		`ev.descriptor == 1 and ev.mask == FILE_WATCH_MODIFY and ev.name == "x.lua"`,
		`none == nil`,
		`removed and not notRemoved`,
	)

	f.eval(t, `
		c = ChildProcess("worker.lua", "a", "b")
		c:sendMessage("hi")
		reply = c:receiveMessage()
		empty = c:receiveMessage()
		running = c:isRunning()
	`)
	f.expectTrue(t, `reply == "echo:hi"`, `empty == nil`, `running`)
	if strings.Join(spawned, ",") != "worker.lua,a,b" {
		t.Errorf("spawned = %v", spawned)
	}

	f.eval(t, `
		res = http.getSync("http://127.0.0.1:8080", "/status", {Authorization = "token", [1] = "skipped"})
		failed = http.getSync("http://127.0.0.1:8080", "/fail")
		posted = http.postSync("http://127.0.0.1:8080", "/upload", nil, "payload")
	`)
	f.expectTrue(t,
		`res.status == 200 and res.body == "ok" and res.headers["Content-Type"] == "text/plain"`,
		`failed == nil`,
		`posted.status == 201`,
	)
	if client.lastURL != "http://127.0.0.1:8080/upload" || client.lastBody != "payload" || client.lastType != "application/octet-stream" {
		t.Errorf("post = %+v", client)
	}

	if err := f.rt.Reset(luart.ReasonLuaReset); err != nil {
		t.Fatal(err)
	}
	if !watcher.closed || child.terminated != 1 {
		t.Errorf("reset did not release resources: watcher closed %v, child terminated %d", watcher.closed, child.terminated)
	}
}

func TestCollabUnavailable(t *testing.T) {
	f := newFixture(t, ``)
	f.init(t)
	for _, call := range []string{
		`FileWatcher()`,
		`ChildProcess("worker.lua")`,
		`http.getSync("http://x", "/")`,
		`Image():loadFromFile("a.png")`,
		`Image():loadBlank(1, 1)`,
	} {
		f.eval(t, `ok, err = pcall(function() return `+call+` end)`)
		if f.global(t, "ok") != false || !strings.Contains(f.global(t, "err").(string), collab.ErrUnavailable.Error()) {
			t.Errorf("%s did not raise %v", call, collab.ErrUnavailable)
		}
	}
}

func TestWorldBindings(t *testing.T) {
	f := newFixture(t, ``)
	f.host.Activate("humans", 1)
	f.host.Activate("items", 2)
	f.init(t)
	var texts []string
	f.host.Handle("createEventMessage", func(args ...uintptr) uintptr {
		texts = append(texts, memmod.CStringFromPtr(args[1]))
		return 0
	})

	f.eval(t, `
		event.sound(3, Vector(1, 2, 3), 0.5)
		event.explosion(Vector())
		event.bullet(1, Vector(), Vector(0, 0, 1), items[2])
		event.bullet(1, Vector(), Vector())
		event.bulletHit(2, Vector(), Vector(0, 1, 0))
		physics.garbageCollectBullets()
		physics.createBlock(4, 5, 6, 7)
		physics.deleteBlock(4, 5, 6)
		chat.announce("hello")
		chat.tellAdmins("psst")
		chat.addRaw(2, "raw", 1, 3)
	`)

	sound := f.host.Calls("createEventSound")
	if len(sound) != 1 || memmod.Int32(sound[0].Args[0]) != 3 {
		t.Fatalf("createEventSound calls = %+v", sound)
	}
	if fl := sound[0].Floats; len(fl) != 2 || fl[0] != 0.5 || fl[1] != 1 {
		t.Errorf("sound volume and pitch = %v", fl)
	}
	if n := len(f.host.Calls("createEventExplosion")); n != 1 {
		t.Errorf("createEventExplosion calls = %d", n)
	}
	bullets := f.host.Calls("createEventBullet")
	if len(bullets) != 2 || memmod.Int32(bullets[0].Args[3]) != 2 || bullets[1].Args[3] != memmod.Arg(-1) {
		t.Errorf("createEventBullet calls = %+v", bullets)
	}
	if hit := f.host.Calls("createEventBulletHit"); len(hit) != 1 || memmod.Int32(hit[0].Args[1]) != 2 {
		t.Errorf("createEventBulletHit calls = %+v", hit)
	}
	if n := len(f.host.Calls("bulletTimeToLive")); n != 1 {
		t.Errorf("bulletTimeToLive calls = %d", n)
	}
	block := f.host.Calls("areaCreateBlock")
	if len(block) != 1 || len(block[0].Args) != 6 || memmod.Int32(block[0].Args[1]) != 4 || block[0].Args[4] != 7 {
		t.Errorf("areaCreateBlock calls = %+v", block)
	}
	if del := f.host.Calls("areaDeleteBlock"); len(del) != 1 || memmod.Int32(del[0].Args[3]) != 6 {
		t.Errorf("areaDeleteBlock calls = %+v", del)
	}

	msgs := f.host.Calls("createEventMessage")
	if len(msgs) != 3 {
		t.Fatalf("createEventMessage calls = %d", len(msgs))
	}
	wantMsgs := []struct {
		speakerType int32
		text        string
		speaker     int32
		distance    int32
	}{
		{0, "hello", -1, 0},
		{4, "psst", -1, 0},
		{2, "raw", 1, 3},
	}
	for i, want := range wantMsgs {
		args := msgs[i].Args
		if memmod.Int32(args[0]) != want.speakerType || memmod.Int32(args[2]) != want.speaker || memmod.Int32(args[3]) != want.distance {
			t.Errorf("message %d args = %#x", i, args)
		}
		if texts[i] != want.text {
			t.Errorf("message %d text = %q, want %q", i, texts[i], want.text)
		}
	}
}

func TestLineIntersectBindings(t *testing.T) {
	f := newFixture(t, ``)
	f.host.Activate("humans", 1)
	f.host.Activate("vehicles", 0)
	f.init(t)

	res := mustGet(t, f, "lineIntersectResults", 0)
	_ = res.Set("pos", entity.NewVector(1, 2, 3))
	_ = res.Set("normal", entity.NewVector(0, 1, 0))
	_ = res.Set("fraction", 0.25)
	_ = res.Set("humanBone", 4)
	_ = res.Set("vehicleFace", 9)

	var segment [2][3]float32
	f.host.Handle("lineIntersectLevel", func(args ...uintptr) uintptr {
		for i := range 2 {
			for c := range 3 {
				segment[i][c] = memmod.Read[float32](args[i] + uintptr(c*4))
			}
		}
		return 1
	})
	f.host.Handle("lineIntersectHuman", func(args ...uintptr) uintptr { return 1 })
	f.host.Handle("lineIntersectTriangle", func(args ...uintptr) uintptr {
		memmod.Write[float32](args[0], 7)
		memmod.Write[float32](args[1]+4, 1)
		memmod.Write[float32](args[2], 0.5)
		return 1
	})

	f.eval(t, `
		level = physics.lineIntersectLevel(Vector(0, 0, 0), Vector(0, -10, 0))
		human = physics.lineIntersectHuman(humans[1], Vector(), Vector(1, 0, 0))
		vehicle = physics.lineIntersectVehicle(vehicles[0], Vector(), Vector(1, 0, 0))
		tri = physics.lineIntersectTriangle(Vector(), Vector(0, 0, 1), Vector(), Vector(1, 0, 0), Vector(0, 1, 0))
	`)
	if segment != [2][3]float32{{0, 0, 0}, {0, -10, 0}} {
		t.Errorf("host saw segment %v", segment)
	}
	f.expectTrue(t,
		`level.hit and level.pos.y == 2 and level.normal.y == 1 and level.fraction == 0.25`,
		`level.bone == nil and level.face == nil`,
		`human.hit and human.bone == 4`,
		`vehicle.hit == false and vehicle.pos == nil`,
		`tri.hit and tri.pos.x == 7 and tri.normal.y == 1 and tri.fraction == 0.5`,
	)
	if args := f.host.Calls("lineIntersectVehicle")[0].Args; len(args) != 4 || args[0] != 0 {
		t.Errorf("lineIntersectVehicle args = %#x", args)
	}
	if args := f.host.Calls("lineIntersectTriangle")[0].Args; len(args) != 8 {
		t.Errorf("lineIntersectTriangle got %d arguments", len(args))
	}

	f.eval(t, `level.pos.x = 100`)
	if v, _ := res.Get("pos"); v.(*entity.Vector).Component(0) != 1 {
		t.Error("intersection result aliases host memory")
	}
}

func TestBotAndRopeBindings(t *testing.T) {
	f := newFixture(t, ``)
	f.init(t)
	f.host.Handle("createRope", func(args ...uintptr) uintptr {
		if memmod.Read[float32](args[0]) != 5 || memmod.Read[float32](args[1]) != 1 {
			return memmod.Arg(-1)
		}
		f.host.Activate("items", 1)
		return 1
	})

	f.eval(t, `bot = players.createBot()`)
	bot := mustGet(t, f, "players", 0)
	for field, want := range map[string]any{"isBot": true, "name": "Bot"} {
		if got, err := bot.Get(field); err != nil || got != want {
			t.Errorf("bot %s = %v, %v", field, got, err)
		}
	}
	f.expectTrue(t,
		`bot.index == 0`,
		`#players.getNonBots() == 0`,
		`items.createRope(Vector(5, 0, 0), RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1)).index == 1`,
		`items.createRope(Vector(), RotMatrix(1, 0, 0, 0, 1, 0, 0, 0, 1)) == nil`,
		`not pcall(items.createRope, Vector())`,
		`humans.createRope == nil and humans.createBot == nil`,
	)

	for i := 1; i < 4; i++ {
		f.host.Activate("players", i)
	}
	f.expectTrue(t, `players.createBot() == nil`)
}

type fakeWorker struct {
	sent    []string
	stopped int
}

func (w *fakeWorker) Send(message string) error {
	w.sent = append(w.sent, message)
	return nil
}

func (w *fakeWorker) Receive() (string, bool, error) {
	if len(w.sent) == 0 {
		return "", false, nil
	}
	msg := w.sent[0]
	w.sent = w.sent[1:]
	return "done:" + msg, true, nil
}

func (w *fakeWorker) Stop() error {
	w.stopped++
	return nil
}

func TestWorkerBindings(t *testing.T) {
	w := &fakeWorker{}
	var started string
	f := newFixture(t, ``, func(o *luart.Options) {
		o.Collab = collab.Set{StartWorker: func(script string) (collab.Worker, error) {
			started = script
			return w, nil
		}}
	})
	f.init(t)

	f.eval(t, `
		worker = Worker("jobs.lua")
		worker:sendMessage("build")
		reply = worker:receiveMessage()
		empty = worker:receiveMessage()
	`)
	f.expectTrue(t, `reply == "done:build"`, `empty == nil`)
	if started != "jobs.lua" {
		t.Errorf("started %q", started)
	}

	f.eval(t, `worker:stop()`)
	if err := f.rt.Reset(luart.ReasonLuaReset); err != nil {
		t.Fatal(err)
	}
	if w.stopped != 2 {
		t.Errorf("worker stopped %d times, want once by the script and once on reset", w.stopped)
	}

	g := newFixture(t, ``)
	g.init(t)
	g.eval(t, `ok, err = pcall(Worker, "jobs.lua")`)
	if g.global(t, "ok") != false || !strings.Contains(g.global(t, "err").(string), collab.ErrUnavailable.Error()) {
		t.Error("Worker without a capability did not raise")
	}
}
