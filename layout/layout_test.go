package layout

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultLayout(t *testing.T) {
	spec, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if spec.Build != DefaultBuild {
		t.Fatalf("Build = %q, want %q", spec.Build, DefaultBuild)
	}

	var gravity *Global
	for i := range spec.Globals {
		if spec.Globals[i].Name == "gravity" {
			gravity = &spec.Globals[i]
		}
	}
	if gravity == nil {
		t.Fatal("embedded layout has no gravity global")
	}
	if gravity.Offset != 0xC72AC || gravity.Type != TypeF32 || gravity.Pry != 1 {
		t.Fatalf("gravity = %+v", *gravity)
	}

	again, err := Default()
	if err != nil || again != spec {
		t.Fatal("Default did not return the shared layout")
	}
}

func TestDefaultLayoutKinds(t *testing.T) {
	spec, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	table := spec.Resolve(0)
	want := []string{
		"connections", "accounts", "players", "humans", "itemTypes", "items", "vehicleTypes",
		"vehicles", "bullets", "rigidBodies", "bonds", "streets", "intersections", "buildings",
		"lineIntersectResults",
	}
	regions := table.Arrays()
	if len(regions) != len(want) {
		t.Fatalf("got %d arrays, want %d", len(regions), len(want))
	}
	for i, name := range want {
		if regions[i].Name != name {
			t.Fatalf("array %d = %q, want %q", i, regions[i].Name, name)
		}
	}

	humans, _ := table.Array("humans")
	if humans.Active == nil || *humans.Active != 0 {
		t.Fatal("humans should use the active flag at offset 0")
	}
	if humans.CreateFn != 0x66D10 || humans.RemoveFn != 0x3EB0 {
		t.Fatalf("humans create/remove = %#x/%#x", humans.CreateFn, humans.RemoveFn)
	}
	itemTypes, _ := table.Array("itemTypes")
	if !itemTypes.Fixed() {
		t.Fatal("itemTypes should be a fixed table")
	}
	streets, _ := table.Array("streets")
	if streets.Counter == nil || streets.Counter.Name != "numStreets" {
		t.Fatal("streets should be counted by numStreets")
	}
}

func TestResolveAddsBase(t *testing.T) {
	spec, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	const base = uintptr(0x7f0000000000)
	table := spec.Resolve(base)

	if table.Base() != base || table.Build() != DefaultBuild {
		t.Fatalf("Base/Build = %#x/%q", table.Base(), table.Build())
	}
	gravity, ok := table.Global("gravity")
	if !ok {
		t.Fatal("no gravity")
	}
	if gravity.Addr != base+0xC72AC {
		t.Fatalf("gravity at %#x, want %#x", gravity.Addr, base+0xC72AC)
	}
	if fn := table.MustFunc("resetGame"); fn != base+0xB10B0 {
		t.Fatalf("resetGame at %#x", fn)
	}
	players, ok := table.Array("players")
	if !ok {
		t.Fatal("no players")
	}
	if got, want := players.Slot(3), base+0x19BC9CC0+3*0x3834; got != want {
		t.Fatalf("players slot 3 at %#x, want %#x", got, want)
	}
	human, ok := players.Field("human")
	if !ok || human.Type != TypeRef || human.Kind != "humans" || human.Offset != 0x9C {
		t.Fatalf("players.human = %+v", human)
	}
	fields, ok := table.Struct("Player")
	if !ok || len(fields) != len(players.Fields) {
		t.Fatal("Struct(Player) does not match the players region")
	}
	if _, ok := table.Func("noSuchFunction"); ok {
		t.Fatal("Func found an unknown name")
	}
}

func TestParseRejectsInvalidLayouts(t *testing.T) {
	const good = `
build: test
globals:
  - {name: count, offset: 0x10, type: u32}
functions:
  - {name: make, offset: 0x20}
arrays:
  - {name: things, struct: Thing, offset: 0x100, stride: 0x10, capacity: 4, counter: count, create: make}
structs:
  Thing:
    - {name: hp, offset: 0x0, type: i32}
    - {name: label, offset: 0x4, type: cstr, size: 8}
`
	if _, err := Parse([]byte(good)); err != nil {
		t.Fatalf("baseline layout rejected: %v", err)
	}

	tests := []struct {
		name string
		from string
		to   string
	}{
		{"missing build", "build: test", "build: ''"},
		{"unknown type", "type: u32}", "type: u33}"},
		{"cstr without size", "type: cstr, size: 8}", "type: cstr}"},
		{"size on scalar", "type: i32}", "type: i32, size: 4}"},
		{"unknown counter", "counter: count", "counter: missing"},
		{"unknown create", "create: make", "create: missing"},
		{"unknown struct", "struct: Thing", "struct: Other"},
		{"field past stride", "offset: 0x4, type: cstr, size: 8}", "offset: 0xc, type: cstr, size: 8}"},
		{"zero stride", "stride: 0x10", "stride: 0"},
		{"zero capacity", "capacity: 4", "capacity: 0"},
		{"active and counter", "counter: count", "counter: count, active: 0"},
		{"dangling ref", "type: i32}", "type: ref, kind: nowhere}"},
		{"duplicate global", "type: u32}", "type: u32}\n  - {name: count, offset: 0x14, type: u32}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := strings.Replace(good, tt.from, tt.to, 1)
			if raw == good {
				t.Fatalf("replacement %q not found", tt.from)
			}
			_, err := Parse([]byte(raw))
			if !errors.Is(err, ErrInvalidLayout) {
				t.Fatalf("Parse error = %v, want ErrInvalidLayout", err)
			}
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("build: [unterminated")); err == nil {
		t.Fatal("Parse accepted malformed YAML")
	}
}

func TestOpen(t *testing.T) {
	for _, ref := range []string{"", DefaultBuild, "  " + DefaultBuild + " "} {
		spec, err := Open(ref)
		if err != nil {
			t.Fatalf("Open(%q): %v", ref, err)
		}
		if spec.Build != DefaultBuild {
			t.Fatalf("Open(%q).Build = %q", ref, spec.Build)
		}
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("build: custom\nfunctions:\n  - {name: f, offset: 0x1}\n"), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	spec, err := Open(path)
	if err != nil {
		t.Fatalf("Open(file): %v", err)
	}
	if spec.Build != "custom" || len(spec.Functions) != 1 {
		t.Fatalf("Open(file) = %+v", spec)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Open of a missing file succeeded")
	}
}
