//go:build linux && amd64

package rosaserver_test

import (
	"debug/elf"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sliverarmory/rosaserver/intercept"
)

func buildLibrosa(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not in PATH")
	}
	cc := "cc"
	if env := os.Getenv("CC"); env != "" {
		cc = strings.Fields(env)[0]
	}
	if _, err := exec.LookPath(cc); err != nil {
		t.Skipf("no C compiler (%s) for cgo", cc)
	}

	out := filepath.Join(t.TempDir(), "librosa.so")
	cmd := exec.Command("go", "build", "-buildmode=c-shared", "-trimpath", "-o", out, "./cmd/librosa")
	cmd.Env = overrideEnv(os.Environ(), map[string]string{
		"CGO_ENABLED": "1",
		"GOOS":        "linux",
		"GOARCH":      "amd64",
	})
	if msg, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build librosa: %v\n%s", err, msg)
	}
	_ = os.Remove(strings.TrimSuffix(out, ".so") + ".h")
	return out
}

func overrideEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 {
			continue
		}
		if _, drop := overrides[kv[:eq]]; drop {
			continue
		}
		out = append(out, kv)
	}
	for key, value := range overrides {
		out = append(out, key+"="+value)
	}
	return out
}

func TestLibrosaExportsEveryInterceptor(t *testing.T) {
	path := buildLibrosa(t)

	f, err := elf.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	syms, err := f.DynamicSymbols()
	if err != nil {
		t.Fatalf("dynamic symbols: %v", err)
	}
	exported := map[string]bool{}
	for _, s := range syms {
		if s.Section != elf.SHN_UNDEF && elf.ST_TYPE(s.Info) == elf.STT_FUNC {
			exported[s.Name] = true
		}
	}

	want := []string{"rosaAttach", "rosaGetPaths", "RosaResetState", "rosa_interceptor"}
	for _, target := range intercept.Targets {
		want = append(want, "rosa"+target.Event)
	}
	for _, name := range want {
		if !exported[name] {
			t.Errorf("librosa does not export %s", name)
		}
	}

	if f.Section(".init_array") == nil {
		t.Error("librosa has no constructors")
	}
}
