package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aryankumar/drover/internal/runner"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
inventory: /etc/drover/inventory.yaml
runner:
  numWorkers: 50
  numConnectors: 10
  connectRetry: 5
  connectBackoff: 2s
  taskTimeout: 60s
  reconnectOnFail: false
  credsRetry:
    - backup
defaults:
  outputFormat: json
  noColor: true
`)

	manager := NewManager(path)
	cfg, err := manager.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Inventory != "/etc/drover/inventory.yaml" {
		t.Errorf("Inventory = %q", cfg.Inventory)
	}
	if cfg.Runner.NumWorkers != 50 {
		t.Errorf("NumWorkers = %d, want 50", cfg.Runner.NumWorkers)
	}
	if cfg.Runner.ConnectRetry == nil || *cfg.Runner.ConnectRetry != 5 {
		t.Errorf("ConnectRetry = %v, want 5", cfg.Runner.ConnectRetry)
	}
	if cfg.Runner.ConnectBackoff != 2*time.Second {
		t.Errorf("ConnectBackoff = %v, want 2s", cfg.Runner.ConnectBackoff)
	}
	if cfg.Runner.ReconnectOnFail == nil || *cfg.Runner.ReconnectOnFail != false {
		t.Errorf("ReconnectOnFail = %v, want false", cfg.Runner.ReconnectOnFail)
	}
	if cfg.Defaults.OutputFormat != "json" {
		t.Errorf("OutputFormat = %q, want json", cfg.Defaults.OutputFormat)
	}
	if !cfg.Defaults.NoColor {
		t.Error("NoColor should be true")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	// Point HOME at an empty directory so no real user config is picked up
	t.Setenv("HOME", t.TempDir())

	manager := NewManager("")
	cfg, err := manager.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Defaults.OutputFormat != "table" {
		t.Errorf("OutputFormat = %q, want table", cfg.Defaults.OutputFormat)
	}
	if cfg.Runner.NumWorkers != 0 {
		t.Errorf("NumWorkers = %d, want 0 (engine default applies later)", cfg.Runner.NumWorkers)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "runner: [not a map")

	manager := NewManager(path)
	if _, err := manager.Load(); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestRunnerOptionsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	manager := NewManager("")
	if _, err := manager.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	opts := manager.RunnerOptions()
	want := runner.DefaultOptions()

	if opts.NumWorkers != want.NumWorkers {
		t.Errorf("NumWorkers = %d, want %d", opts.NumWorkers, want.NumWorkers)
	}
	if opts.ConnectRetry != want.ConnectRetry {
		t.Errorf("ConnectRetry = %d, want %d", opts.ConnectRetry, want.ConnectRetry)
	}
	if opts.ReconnectOnFail != want.ReconnectOnFail {
		t.Errorf("ReconnectOnFail = %v, want %v", opts.ReconnectOnFail, want.ReconnectOnFail)
	}
	if opts.TaskTimeout != want.TaskTimeout {
		t.Errorf("TaskTimeout = %v, want %v", opts.TaskTimeout, want.TaskTimeout)
	}
}

func TestRunnerOptionsOverlay(t *testing.T) {
	path := writeConfig(t, `
runner:
  numWorkers: 25
  connectRetry: 0
  taskRetry: 4
  taskBackoff: 1s
  reconnectOnFail: false
  taskStopErrors:
    - "*fatal*"
  tunnelConnections:
    - ssh
    - netconf
`)

	manager := NewManager(path)
	if _, err := manager.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	opts := manager.RunnerOptions()

	if opts.NumWorkers != 25 {
		t.Errorf("NumWorkers = %d, want 25", opts.NumWorkers)
	}
	// explicit zero must override the engine default, unlike an absent key
	if opts.ConnectRetry != 0 {
		t.Errorf("ConnectRetry = %d, want 0", opts.ConnectRetry)
	}
	if opts.TaskRetry != 4 {
		t.Errorf("TaskRetry = %d, want 4", opts.TaskRetry)
	}
	if opts.TaskBackoff != time.Second {
		t.Errorf("TaskBackoff = %v, want 1s", opts.TaskBackoff)
	}
	if opts.ReconnectOnFail {
		t.Error("ReconnectOnFail should be overridden to false")
	}
	if len(opts.TaskStopErrors) != 1 || opts.TaskStopErrors[0] != "*fatal*" {
		t.Errorf("TaskStopErrors = %v", opts.TaskStopErrors)
	}
	if len(opts.TunnelConnections) != 2 {
		t.Errorf("TunnelConnections = %v", opts.TunnelConnections)
	}
	// untouched knobs keep the engine defaults
	if opts.NumConnectors != runner.DefaultNumConnectors {
		t.Errorf("NumConnectors = %d, want %d", opts.NumConnectors, runner.DefaultNumConnectors)
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	manager := NewManager(path)
	if _, err := manager.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := manager.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	reloaded := NewManager(path)
	if _, err := reloaded.Load(); err != nil {
		t.Fatalf("reload error: %v", err)
	}
}
