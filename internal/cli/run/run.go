// Package run implements the drover run command group: executing built-in
// tasks against the inventory through the retrying execution engine.
package run

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryankumar/drover/internal/check"
	"github.com/aryankumar/drover/internal/config"
	"github.com/aryankumar/drover/internal/connection"
	"github.com/aryankumar/drover/internal/inventory"
	"github.com/aryankumar/drover/internal/output"
	"github.com/aryankumar/drover/internal/runner"

	"gopkg.in/yaml.v3"
)

// NewRunCmd creates the run parent command
// This command aggregates all task subcommands (cmd, ping, file-put, gnmi, http)
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run tasks against inventory hosts",
		Long: `Run a task against every host in the inventory (or a filtered subset).

Connections are established by a bounded connector pool and tasks execute
in a bounded worker pool, both with retries, backoff and jitter. Hosts
behind a jump host are reached through a shared tunnel.`,
		Example: `  # Run CLI commands on all hosts
  drover run cmd "show version" "show ip int brief"

  # Ping a subset of hosts
  drover run ping -F "edge-*"

  # Upload a config file
  drover run file-put ./golden.cfg /flash/golden.cfg

  # Retrieve gNMI state
  drover run gnmi get /system/state/hostname

  # Verify output with checks
  drover run cmd "show version" --checks checks.yaml`,
	}

	// Register all subcommands
	cmd.AddCommand(newCmdCmd())
	cmd.AddCommand(newPingCmd())
	cmd.AddCommand(newFilePutCmd())
	cmd.AddCommand(newGNMICmd())
	cmd.AddCommand(newHTTPCmd())

	return cmd
}

// environment bundles everything a run subcommand needs: resolved
// configuration, filtered hosts and a ready execution engine
type environment struct {
	Config *config.DroverConfig
	Hosts  []*inventory.Host
	Runner *runner.RetryRunner
	Opts   runner.Options
}

// setup loads configuration and inventory and builds the engine
func setup(cmd *cobra.Command) (*environment, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	manager := config.NewManager(cfgPath)
	cfg, err := manager.Load()
	if err != nil {
		return nil, err
	}

	inv, err := inventory.Load(inventoryPath(cfg))
	if err != nil {
		return nil, err
	}

	filters := viper.GetStringSlice("filter")
	hosts := inv.Filter(filters...)
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts matched filters %v", filters)
	}

	opts := manager.RunnerOptions()
	if workers := viper.GetInt("workers"); workers > 0 {
		opts.NumWorkers = workers
	}
	if connectors := viper.GetInt("connectors"); connectors > 0 {
		opts.NumConnectors = connectors
	}

	registry := connection.NewRegistry(slog.Default())
	r := runner.NewRetryRunner(opts, registry, slog.Default())

	return &environment{
		Config: cfg,
		Hosts:  hosts,
		Runner: r,
		Opts:   opts,
	}, nil
}

// inventoryPath resolves the inventory file location: flag, then config,
// then $HOME/.drover/inventory.yaml
func inventoryPath(cfg *config.DroverConfig) string {
	if path := viper.GetString("inventory"); path != "" {
		return path
	}
	if cfg.Inventory != "" {
		return cfg.Inventory
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "inventory.yaml"
	}
	return filepath.Join(home, ".drover", "inventory.yaml")
}

// execute runs the task, renders results and evaluates optional checks.
// A non-nil error is returned when any host or check failed, so the process
// exits non-zero for scripting.
func execute(cmd *cobra.Command, env *environment, task *runner.Task) error {
	defer env.Runner.Close()

	results, err := env.Runner.Run(cmd.Context(), task, env.Hosts)
	if err != nil {
		return err
	}

	formatter := newFormatter()
	if err := formatter.FormatResults(os.Stdout, results); err != nil {
		return err
	}

	checksPath, _ := cmd.Flags().GetString("checks")
	if checksPath != "" {
		if err := runChecks(checksPath, results); err != nil {
			return err
		}
	}

	if results.HasFailures() {
		return fmt.Errorf("%d of %d hosts failed", results.CountFailed(), len(results))
	}
	return nil
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

// runChecks loads a check file and evaluates it against the results
func runChecks(path string, results runner.Results) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading checks file: %w", err)
	}

	var checks []check.Check
	if err := yaml.Unmarshal(data, &checks); err != nil {
		return fmt.Errorf("parsing checks file: %w", err)
	}

	outcomes, err := check.Evaluate(results, checks)
	if err != nil {
		return err
	}

	formatter := newFormatter()
	flat := make([]map[string]interface{}, 0, len(outcomes))
	for _, o := range outcomes {
		status := "PASS"
		if !o.Passed {
			status = "FAIL"
		}
		flat = append(flat, map[string]interface{}{
			"host":   o.Host,
			"check":  o.Check,
			"status": status,
			"detail": o.Detail,
		})
	}
	if err := formatter.Format(os.Stdout, flat); err != nil {
		return err
	}

	if failed := check.CountFailed(outcomes); failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(outcomes))
	}
	return nil
}

// addCheckFlag registers the shared --checks flag on a task subcommand
func addCheckFlag(cmd *cobra.Command) {
	cmd.Flags().String("checks", "", "YAML file of checks to evaluate against results")
}
