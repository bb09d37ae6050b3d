package run

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/aryankumar/drover/internal/task"
)

// newPingCmd creates the run ping subcommand
func newPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Probe TCP reachability of hosts",
		Long: `Probe each host with a TCP connection to verify reachability before
running heavier tasks. No protocol connection is established.`,
		Example: `  # Probe the SSH port of all hosts
  drover run ping

  # Probe a custom port with a shorter timeout
  drover run ping --port 830 --probe-timeout 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}

			port, _ := cmd.Flags().GetInt("port")
			timeout, _ := cmd.Flags().GetDuration("probe-timeout")

			return execute(cmd, env, task.Ping(port, timeout))
		},
	}

	cmd.Flags().Int("port", 0, "TCP port to probe (0 means the SSH default)")
	cmd.Flags().Duration("probe-timeout", 5*time.Second, "timeout per probe")

	return cmd
}
