package run

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aryankumar/drover/internal/task"
)

// newHTTPCmd creates the run http subcommand
func newHTTPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http <method> <path>",
		Short: "Issue an HTTP API request to hosts",
		Long: `Issue one HTTP request against each host's management API. JSON response
bodies are decoded into the result payload; a status of 400 or above
fails the host.`,
		Example: `  # Query a REST endpoint on all hosts
  drover run http GET /restconf/data/system/state

  # Apply configuration from a file
  drover run http PATCH /restconf/data/system --body-file system.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := cmd.Flags().GetString("body")
			bodyFile, _ := cmd.Flags().GetString("body-file")
			if body != "" && bodyFile != "" {
				return fmt.Errorf("--body and --body-file are mutually exclusive")
			}
			if bodyFile != "" {
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("reading body file: %w", err)
				}
				body = string(data)
			}

			env, err := setup(cmd)
			if err != nil {
				return err
			}

			method := strings.ToUpper(args[0])
			return execute(cmd, env, task.HTTPCall(method, args[1], body))
		},
	}

	cmd.Flags().String("body", "", "request body")
	cmd.Flags().String("body-file", "", "file containing the request body")
	addCheckFlag(cmd)

	return cmd
}
