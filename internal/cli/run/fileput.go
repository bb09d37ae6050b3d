package run

import (
	"github.com/spf13/cobra"

	"github.com/aryankumar/drover/internal/task"
)

// newFilePutCmd creates the run file-put subcommand
func newFilePutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file-put <source> <destination>",
		Short: "Upload a file to hosts over SFTP",
		Long: `Upload a local file to each host over the SFTP subsystem of its SSH
connection. A destination ending in "/" keeps the source file name.`,
		Example: `  # Upload a config snippet to all hosts
  drover run file-put ./golden.cfg /flash/golden.cfg

  # Keep the source name under a remote directory
  drover run file-put ./image.bin /flash/`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			return execute(cmd, env, task.FilePut(args[0], args[1]))
		},
	}

	return cmd
}
