package main

import (
	"github.com/spf13/cobra"

	"github.com/sliverarmory/rosaserver/collab/worker"
	"github.com/sliverarmory/rosaserver/config"
	"github.com/sliverarmory/rosaserver/logging"
)

// newWorkerCmd is what ChildProcess runs. Frames arrive on stdin and go out
// on stdout, so logs must stay on stderr.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker <script> [args...]",
		Short:  "Run a script as a ChildProcess worker",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			if level == "" {
				level = config.Default().LogLevel
			}
			logger := logging.NewLogger(level, cmd.ErrOrStderr())
			return worker.Serve(args[0], args[1:], cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}
