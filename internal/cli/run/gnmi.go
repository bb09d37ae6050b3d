package run

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aryankumar/drover/internal/task"
)

// newGNMICmd creates the run gnmi subcommand group
func newGNMICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gnmi",
		Short: "Run gNMI operations against hosts",
		Long: `Run gNMI Get, Set and Capabilities operations against each host's gNMI
endpoint over gRPC.`,
	}

	cmd.AddCommand(newGNMIGetCmd())
	cmd.AddCommand(newGNMISetCmd())
	cmd.AddCommand(newGNMICapabilitiesCmd())

	return cmd
}

// newGNMIGetCmd creates the run gnmi get subcommand
func newGNMIGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <path> [path...]",
		Short: "Retrieve state paths via gNMI Get",
		Example: `  # Retrieve hostname state from all hosts
  drover run gnmi get /system/state/hostname

  # Extract one value from the response
  drover run gnmi get /system/state --filter "notification.0.update.0.val"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}

			filter, _ := cmd.Flags().GetString("filter")
			return execute(cmd, env, task.GNMIGet(args, filter))
		},
	}

	cmd.Flags().String("filter", "", "gjson path applied to each response")
	addCheckFlag(cmd)

	return cmd
}

// newGNMISetCmd creates the run gnmi set subcommand
func newGNMISetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Apply configuration via gNMI Set",
		Long: `Apply configuration operations from a YAML file via a single gNMI Set
request per host. Each entry names an action (update, replace, delete),
a path and, for update and replace, a JSON value.`,
		Example: `  # operations.yaml:
  #   - action: update
  #     path: /system/config/hostname
  #     value: '{"hostname": "edge-01"}'
  drover run gnmi set --ops operations.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opsPath, _ := cmd.Flags().GetString("ops")
			ops, err := loadSetOps(opsPath)
			if err != nil {
				return err
			}

			env, err := setup(cmd)
			if err != nil {
				return err
			}
			return execute(cmd, env, task.GNMISet(ops))
		},
	}

	cmd.Flags().String("ops", "", "YAML file of set operations (required)")
	cmd.MarkFlagRequired("ops")

	return cmd
}

// newGNMICapabilitiesCmd creates the run gnmi capabilities subcommand
func newGNMICapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Retrieve gNMI server capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			return execute(cmd, env, task.GNMICapabilities())
		},
	}
}

// loadSetOps reads gNMI set operations from a YAML file
func loadSetOps(path string) ([]task.GNMISetOp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading set operations file: %w", err)
	}

	var ops []task.GNMISetOp
	if err := yaml.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("parsing set operations file: %w", err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("set operations file %q is empty", path)
	}
	return ops, nil
}
