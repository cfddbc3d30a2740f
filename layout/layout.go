// Package layout describes where the host keeps its globals, functions and
// entity arrays. A layout is pinned to one exact host build; nothing checks
// that the running binary matches it.
package layout

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed subrosa_37c.yaml
var subrosa37c []byte

// DefaultBuild is the build id of the embedded layout.
const DefaultBuild = "subrosa-37c"

var ErrInvalidLayout = errors.New("invalid layout")

// Global is a scalar or string living at a fixed offset.
type Global struct {
	Name     string `yaml:"name"`
	Offset   uint64 `yaml:"offset"`
	Type     Type   `yaml:"type"`
	Size     int    `yaml:"size,omitempty"`
	Pry      int    `yaml:"pry,omitempty"`
	ReadOnly bool   `yaml:"readonly,omitempty"`
}

// Function is a host function entry point.
type Function struct {
	Name   string `yaml:"name"`
	Offset uint64 `yaml:"offset"`
}

// Array is a fixed-capacity array of host structs.
//
// Liveness of a slot is decided by Active (int32 flag inside the struct), by
// Counter (slots below the named global are live), or, with neither set, the
// array is a fixed table whose slots are always live.
type Array struct {
	Name     string  `yaml:"name"`
	Struct   string  `yaml:"struct"`
	Offset   uint64  `yaml:"offset"`
	Stride   uint64  `yaml:"stride"`
	Capacity int     `yaml:"capacity"`
	Active   *uint64 `yaml:"active,omitempty"`
	Counter  string  `yaml:"counter,omitempty"`
	Create   string  `yaml:"create,omitempty"`
	Remove   string  `yaml:"remove,omitempty"`
}

// Field is one member of a host struct.
type Field struct {
	Name     string `yaml:"name"`
	Offset   uint64 `yaml:"offset"`
	Type     Type   `yaml:"type"`
	Size     int    `yaml:"size,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	ReadOnly bool   `yaml:"readonly,omitempty"`
}

// Width is the number of bytes the field occupies.
func (f Field) Width() int {
	if f.Type == TypeCString {
		return f.Size
	}
	return f.Type.Size()
}

// Spec is a parsed, validated layout.
type Spec struct {
	Build     string             `yaml:"build"`
	Globals   []Global           `yaml:"globals"`
	Functions []Function         `yaml:"functions"`
	Arrays    []Array            `yaml:"arrays"`
	Structs   map[string][]Field `yaml:"structs"`
}

var (
	defaultOnce sync.Once
	defaultSpec *Spec
	defaultErr  error
)

// Default returns the embedded layout. The result is shared; callers must
// not modify it.
func Default() (*Spec, error) {
	defaultOnce.Do(func() {
		defaultSpec, defaultErr = Parse(subrosa37c)
	})
	return defaultSpec, defaultErr
}

// Open returns the embedded layout when ref is empty or names its build,
// and otherwise reads ref as a layout file.
func Open(ref string) (*Spec, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == DefaultBuild {
		return Default()
	}
	raw, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return spec, nil
}

// Parse decodes and validates a YAML layout.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks names, types and cross references.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Build) == "" {
		return invalid("missing build id")
	}

	globals := make(map[string]Global, len(s.Globals))
	for _, g := range s.Globals {
		if g.Name == "" {
			return invalid("global at %#x has no name", g.Offset)
		}
		if _, dup := globals[g.Name]; dup {
			return invalid("duplicate global %q", g.Name)
		}
		if err := checkType(g.Type, g.Size); err != nil {
			return invalid("global %q: %v", g.Name, err)
		}
		if g.Type == TypeRef || g.Type == TypeVec3 || g.Type == TypeRot {
			return invalid("global %q: type %s is only valid on struct fields", g.Name, g.Type)
		}
		if g.Pry < 0 {
			return invalid("global %q: negative pry page count", g.Name)
		}
		globals[g.Name] = g
	}

	funcs := make(map[string]struct{}, len(s.Functions))
	for _, f := range s.Functions {
		if f.Name == "" {
			return invalid("function at %#x has no name", f.Offset)
		}
		if _, dup := funcs[f.Name]; dup {
			return invalid("duplicate function %q", f.Name)
		}
		funcs[f.Name] = struct{}{}
	}

	arrays := make(map[string]Array, len(s.Arrays))
	for _, a := range s.Arrays {
		if a.Name == "" {
			return invalid("array at %#x has no name", a.Offset)
		}
		if _, dup := arrays[a.Name]; dup {
			return invalid("duplicate array %q", a.Name)
		}
		arrays[a.Name] = a
	}

	for _, a := range s.Arrays {
		if a.Stride == 0 {
			return invalid("array %q: zero stride", a.Name)
		}
		if a.Capacity <= 0 {
			return invalid("array %q: capacity must be positive", a.Name)
		}
		if a.Active != nil && a.Counter != "" {
			return invalid("array %q: active and counter are exclusive", a.Name)
		}
		if a.Active != nil && *a.Active+4 > a.Stride {
			return invalid("array %q: active flag outside the struct", a.Name)
		}
		if a.Counter != "" {
			g, ok := globals[a.Counter]
			if !ok {
				return invalid("array %q: unknown counter %q", a.Name, a.Counter)
			}
			if !g.Type.IsInteger() {
				return invalid("array %q: counter %q is not an integer", a.Name, a.Counter)
			}
		}
		for _, fn := range []string{a.Create, a.Remove} {
			if fn == "" {
				continue
			}
			if _, ok := funcs[fn]; !ok {
				return invalid("array %q: unknown function %q", a.Name, fn)
			}
		}
		fields, ok := s.Structs[a.Struct]
		if !ok {
			return invalid("array %q: unknown struct %q", a.Name, a.Struct)
		}
		seen := make(map[string]struct{}, len(fields))
		for _, f := range fields {
			if f.Name == "" {
				return invalid("struct %s: field at %#x has no name", a.Struct, f.Offset)
			}
			if _, dup := seen[f.Name]; dup {
				return invalid("struct %s: duplicate field %q", a.Struct, f.Name)
			}
			seen[f.Name] = struct{}{}
			if err := checkType(f.Type, f.Size); err != nil {
				return invalid("struct %s field %q: %v", a.Struct, f.Name, err)
			}
			if f.Offset+uint64(f.Width()) > a.Stride {
				return invalid("struct %s field %q: extends past stride %#x of %q", a.Struct, f.Name, a.Stride, a.Name)
			}
			if f.Type == TypeRef {
				if _, ok := arrays[f.Kind]; !ok {
					return invalid("struct %s field %q: unknown kind %q", a.Struct, f.Name, f.Kind)
				}
			}
		}
	}
	return nil
}

func checkType(t Type, size int) error {
	if !t.valid() {
		return fmt.Errorf("unknown type %q", t)
	}
	if t == TypeCString && size <= 0 {
		return errors.New("cstr needs a positive size")
	}
	if t != TypeCString && size != 0 {
		return fmt.Errorf("size is only valid on cstr, not %s", t)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidLayout, fmt.Sprintf(format, args...))
}
