// Package conn implements the drover conn command group: inspecting and
// managing the protocol connections of inventory hosts.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryankumar/drover/internal/config"
	"github.com/aryankumar/drover/internal/connection"
	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/output"
	"github.com/aryankumar/drover/internal/runner"
)

// NewConnCmd creates the conn parent command
func NewConnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conn",
		Short: "Manage host connections",
		Long: `Inspect, establish and tear down protocol connections on inventory
hosts. Useful for verifying credentials and jump host reachability
without running a task.`,
		Example: `  # Verify SSH connectivity and credentials on all hosts
  drover conn open ssh

  # List live connections after a run
  drover conn ls

  # Drop every connection
  drover conn close`,
	}

	cmd.AddCommand(newConnLsCmd())
	cmd.AddCommand(newConnOpenCmd())
	cmd.AddCommand(newConnCloseCmd())

	return cmd
}

// loadHosts loads the inventory and applies the host filters
func loadHosts(cmd *cobra.Command) (*config.Manager, []*inventory.Host, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	manager := config.NewManager(cfgPath)
	cfg, err := manager.Load()
	if err != nil {
		return nil, nil, err
	}

	path := viper.GetString("inventory")
	if path == "" {
		path = cfg.Inventory
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".drover", "inventory.yaml")
	}

	inv, err := inventory.Load(path)
	if err != nil {
		return nil, nil, err
	}

	filters := viper.GetStringSlice("filter")
	hosts := inv.Filter(filters...)
	if len(hosts) == 0 {
		return nil, nil, fmt.Errorf("no hosts matched filters %v", filters)
	}

	return manager, hosts, nil
}

// newFormatter builds the output formatter from the bound flags
func newFormatter() output.Formatter {
	format := output.Format(viper.GetString("output"))
	if format == "" {
		format = output.FormatTable
	}
	return output.NewFormatter(format,
		output.WithNoColor(viper.GetBool("no-color")),
		output.WithWide(viper.GetBool("wide")),
	)
}

// newConnLsCmd creates the conn ls subcommand
func newConnLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List live connections per host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, hosts, err := loadHosts(cmd)
			if err != nil {
				return err
			}

			listing := connection.List(hosts)
			flat := make([]map[string]interface{}, 0, len(listing))
			for _, entry := range listing {
				flat = append(flat, map[string]interface{}{
					"host":        entry.Host,
					"connections": fmt.Sprintf("%v", entry.Connections),
				})
			}
			return newFormatter().Format(os.Stdout, flat)
		},
	}
}

// newConnOpenCmd creates the conn open subcommand
func newConnOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <name> [name...]",
		Short: "Establish named connections on hosts",
		Long: `Establish the named connections on each host through the connector pool,
with the configured retries, fallback credentials and jump host routing.
Nothing else runs, so this verifies reachability and credentials.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, hosts, err := loadHosts(cmd)
			if err != nil {
				return err
			}

			registry := connection.NewRegistry(slog.Default())
			r := runner.NewRetryRunner(manager.RunnerOptions(), registry, slog.Default())
			defer r.Close()

			probe := &runner.Task{
				Name:        "conn-open",
				Connections: args,
				Func: func(_ context.Context, host *inventory.Host, _ runner.Params) (interface{}, error) {
					return fmt.Sprintf("connections: %v", host.ConnectionNames()), nil
				},
			}

			results, err := r.Run(cmd.Context(), probe, hosts)
			if err != nil {
				return err
			}
			if err := newFormatter().FormatResults(os.Stdout, results); err != nil {
				return err
			}
			if results.HasFailures() {
				return fmt.Errorf("%d of %d hosts failed", results.CountFailed(), len(results))
			}
			return nil
		},
	}
}

// newConnCloseCmd creates the conn close subcommand
func newConnCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close [name...]",
		Short: "Close connections on hosts",
		Long: `Close connections on each host. With no names given every connection is
closed; otherwise only the named ones. Closing a connection a host does
not have is a no-op.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, hosts, err := loadHosts(cmd)
			if err != nil {
				return err
			}

			if err := connection.Close(hosts, args...); err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "closed connections on %d hosts\n", len(hosts))
			return nil
		},
	}
}
