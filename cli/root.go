package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sliverarmory/rosaserver/config"
	"github.com/sliverarmory/rosaserver/logging"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rosaserver",
		Short: "Run a Sub Rosa server with the Lua scripting library preloaded",
		Long: `rosaserver launches a Sub Rosa 0.37c dedicated server with librosa.so
preloaded, inspects the memory layout the library relies on, checks
scripts before they are deployed, and hosts script workers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default $RS_CONFIG or ./rosaserver.toml)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")

	rootCmd.AddCommand(
		newRunCmd(),
		newLayoutCmd(),
		newCheckCmd(),
		newWorkerCmd(),
	)
	return rootCmd
}

// loadConfig applies the persistent flags on top of config.Load.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path, true)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.LogLevel, os.Stderr)
}
