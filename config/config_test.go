package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{FileEnv, "RS_ENTRY_FILE", "RS_LOG_LEVEL", "RS_LAYOUT", "RS_HTTP_TIMEOUT", "RS_WORKER_BINARY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rosaserver.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"), false)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if *cfg != *Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
entry_file = "mods/boot.lua"
log_level = "debug"
http_timeout = "3s"
worker_binary = "/opt/rosa/rosaserver"
`)
	t.Setenv("RS_LOG_LEVEL", "trace")
	t.Setenv("RS_LAYOUT", "/etc/rosa/layout.yaml")

	cfg, err := LoadFile(path, true)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := Config{
		EntryFile:    "mods/boot.lua",
		LogLevel:     "trace",
		Layout:       "/etc/rosa/layout.yaml",
		HTTPTimeout:  3 * time.Second,
		WorkerBinary: "/opt/rosa/rosaserver",
	}
	if *cfg != want {
		t.Fatalf("got %+v, want %+v", *cfg, want)
	}
}

func TestLoadUsesConfigEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(FileEnv, writeFile(t, `entry_file = "other.lua"`))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EntryFile != "other.lua" {
		t.Fatalf("EntryFile = %q", cfg.EntryFile)
	}

	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "gone.toml"))
	if _, err := Load(); err == nil {
		t.Fatal("missing RS_CONFIG file accepted")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
		want string
	}{
		{name: "bad toml", file: `entry_file = `, want: "parse "},
		{name: "bad duration env", env: map[string]string{"RS_HTTP_TIMEOUT": "soon"}, want: "parse env:"},
		{name: "empty entry", file: `entry_file = " "`, want: "entry_file"},
		{name: "zero timeout", file: `http_timeout = "0s"`, want: "http_timeout"},
		{name: "unknown level", env: map[string]string{"RS_LOG_LEVEL": "loud"}, want: "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile(writeFile(t, tt.file), true)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadFile = %v, want error containing %q", err, tt.want)
			}
			if strings.Contains(tt.want, "_") && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("error %v is not ErrInvalidConfig", err)
			}
		})
	}
}
