package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryankumar/drover/internal/config"
	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/output"
)

// newHostsCmd creates the hosts command for inspecting resolved inventory
func newHostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List inventory hosts",
		Long: `List the hosts of the inventory with their resolved connection
parameters (after group and defaults inheritance).`,
		Example: `  # List all hosts
  drover hosts

  # List a subset as JSON
  drover hosts -F "edge-*" -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHosts(cmd)
		},
	}
}

func runHosts(cmd *cobra.Command) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	manager := config.NewManager(cfgPath)
	cfg, err := manager.Load()
	if err != nil {
		return err
	}

	path := viper.GetString("inventory")
	if path == "" {
		path = cfg.Inventory
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".drover", "inventory.yaml")
	}

	inv, err := inventory.Load(path)
	if err != nil {
		return err
	}

	hosts := inv.Filter(viper.GetStringSlice("filter")...)

	flat := make([]map[string]interface{}, 0, len(hosts))
	for _, host := range hosts {
		entry := map[string]interface{}{
			"name":     host.Name,
			"hostname": host.Hostname,
			"platform": host.Platform,
			"username": host.Username,
		}
		if host.JumpHost != nil {
			entry["jumphost"] = host.JumpHost.Hostname
		} else {
			entry["jumphost"] = ""
		}
		flat = append(flat, entry)
	}

	format := output.Format(viper.GetString("output"))
	if format == "" {
		format = output.FormatTable
	}
	formatter := output.NewFormatter(format,
		output.WithNoColor(viper.GetBool("no-color")),
		output.WithWide(viper.GetBool("wide")),
	)
	return formatter.Format(os.Stdout, flat)
}
