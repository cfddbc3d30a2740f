// Package config loads rosaserver settings: built-in defaults, then an
// optional TOML file, then RS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// FileEnv names the variable holding the config file path.
const FileEnv = "RS_CONFIG"

// DefaultFile is read from the working directory when RS_CONFIG is unset.
const DefaultFile = "rosaserver.toml"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// EntryFile is the script run on every runtime build.
	EntryFile string `toml:"entry_file" env:"RS_ENTRY_FILE"`
	// LogLevel is trace, debug, info, warn or error.
	LogLevel string `toml:"log_level" env:"RS_LOG_LEVEL"`
	// Layout is a build id or a path to a layout YAML file.
	Layout string `toml:"layout" env:"RS_LAYOUT"`
	// HTTPTimeout bounds http.getSync and http.postSync.
	HTTPTimeout time.Duration `toml:"http_timeout" env:"RS_HTTP_TIMEOUT"`
	// WorkerBinary is run as `<binary> worker <script>` for ChildProcess.
	WorkerBinary string `toml:"worker_binary" env:"RS_WORKER_BINARY"`
}

func Default() *Config {
	return &Config{
		EntryFile:    "main/init.lua",
		LogLevel:     "info",
		Layout:       "subrosa-37c",
		HTTPTimeout:  10 * time.Second,
		WorkerBinary: "rosaserver",
	}
}

// Load reads the file named by RS_CONFIG (or DefaultFile) if it exists and
// applies the environment on top.
func Load() (*Config, error) {
	path := os.Getenv(FileEnv)
	required := path != ""
	if !required {
		path = DefaultFile
	}
	return LoadFile(path, required)
}

// LoadFile is Load with an explicit path. A missing file is an error only
// when required is set.
func LoadFile(path string, required bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.EntryFile) == "" {
		return fmt.Errorf("%w: entry_file is empty", ErrInvalidConfig)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: http_timeout must be positive, got %s", ErrInvalidConfig, c.HTTPTimeout)
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}
