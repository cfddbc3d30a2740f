package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sliverarmory/rosaserver/config"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- <server binary> [server args...]",
		Short: "Start the server with librosa.so preloaded",
		Long: `Start the server with librosa.so preloaded.

The server inherits this process's terminal and environment, plus
LD_PRELOAD pointing at the library and RS_CONFIG when --config is set.

Examples:
  rosaserver run -- ./subrosa.x64
  rosaserver run --library /opt/rosa/librosa.so -- ./subrosa.x64`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			library, _ := cmd.Flags().GetString("library")
			configPath, _ := cmd.Flags().GetString("config")
			level, _ := cmd.Flags().GetString("log-level")

			lib, err := filepath.Abs(library)
			if err != nil {
				return err
			}
			if _, err := os.Stat(lib); err != nil {
				return fmt.Errorf("library: %w", err)
			}

			// The terminal delivers SIGINT to the server too; it shuts itself
			// down and run returns once it has.
			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)

			server := exec.Command(args[0], args[1:]...)
			server.Stdin = cmd.InOrStdin()
			server.Stdout = cmd.OutOrStdout()
			server.Stderr = cmd.ErrOrStderr()
			server.Env = serverEnv(os.Environ(), lib, configPath, level)

			if err := server.Run(); err != nil {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("library", "./librosa.so", "Path to the preload library")
	return cmd
}

// serverEnv returns base with LD_PRELOAD set to lib. Existing preloads are
// kept after it.
func serverEnv(base []string, lib, configPath, level string) []string {
	env := make([]string, 0, len(base)+3)
	preload := lib
	for _, kv := range base {
		switch {
		case strings.HasPrefix(kv, "LD_PRELOAD="):
			if prev := strings.TrimPrefix(kv, "LD_PRELOAD="); prev != "" {
				preload += ":" + prev
			}
			continue
		case configPath != "" && strings.HasPrefix(kv, config.FileEnv+"="):
			continue
		case level != "" && strings.HasPrefix(kv, "RS_LOG_LEVEL="):
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "LD_PRELOAD="+preload)
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			configPath = abs
		}
		env = append(env, config.FileEnv+"="+configPath)
	}
	if level != "" {
		env = append(env, "RS_LOG_LEVEL="+level)
	}
	return env
}
