package run

import (
	"github.com/spf13/cobra"

	"github.com/aryankumar/drover/internal/task"
)

// newCmdCmd creates the run cmd subcommand
func newCmdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cmd <command> [command...]",
		Short: "Run CLI commands over SSH",
		Long: `Run one or more CLI commands on each host over its SSH connection.

Commands run in order within one result; the first failing command fails
the host's attempt and triggers the configured retries.`,
		Example: `  # Single command on all hosts
  drover run cmd "show version"

  # Multiple commands on core devices only
  drover run cmd "show isis neighbors" "show bgp summary" -F "core-*"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			return execute(cmd, env, task.Commands(args))
		},
	}

	addCheckFlag(cmd)

	return cmd
}
