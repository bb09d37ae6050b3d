// Package config loads drover configuration from file and environment,
// layering file values over the engine defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/aryankumar/drover/internal/runner"
)

const (
	defaultConfigName = ".drover"
	defaultConfigDir  = ".drover"
)

// Manager handles drover configuration
type Manager struct {
	configPath string
	config     *DroverConfig
	viper      *viper.Viper
}

// NewManager creates a new configuration manager
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		viper:      viper.New(),
		config:     &DroverConfig{},
	}
}

// Load loads the drover configuration from file
func (m *Manager) Load() (*DroverConfig, error) {
	if m.configPath != "" {
		m.viper.SetConfigFile(m.configPath)
	} else {
		// Try multiple locations
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		// Check ~/.drover/config.yaml
		m.viper.AddConfigPath(filepath.Join(home, defaultConfigDir))
		// Check ~/.drover.yaml
		m.viper.AddConfigPath(home)
		m.viper.SetConfigName(defaultConfigName)
		m.viper.SetConfigType("yaml")
	}

	m.viper.SetEnvPrefix("DROVER")
	m.viper.AutomaticEnv()

	// Initialize config to ensure defaults are set even for empty configs
	m.config = &DroverConfig{}

	if err := m.viper.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist, we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		m.applyDefaults()
		return m.config, nil
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	m.applyDefaults()

	return m.config, nil
}

// Save saves the current configuration to file
func (m *Manager) Save() error {
	if m.configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		configDir := filepath.Join(home, defaultConfigDir)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}

		m.configPath = filepath.Join(configDir, "config.yaml")
	}

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := m.viper.WriteConfigAs(m.configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *DroverConfig {
	return m.config
}

// RunnerOptions builds engine options from the configuration, starting from
// the engine defaults and overlaying every configured value
func (m *Manager) RunnerOptions() runner.Options {
	opts := runner.DefaultOptions()
	rc := m.config.Runner

	if rc.NumWorkers > 0 {
		opts.NumWorkers = rc.NumWorkers
	}
	if rc.NumConnectors > 0 {
		opts.NumConnectors = rc.NumConnectors
	}
	if rc.ConnectRetry != nil {
		opts.ConnectRetry = *rc.ConnectRetry
	}
	if rc.ConnectBackoff > 0 {
		opts.ConnectBackoff = rc.ConnectBackoff
	}
	if rc.ConnectSplay > 0 {
		opts.ConnectSplay = rc.ConnectSplay
	}
	if rc.TaskRetry != nil {
		opts.TaskRetry = *rc.TaskRetry
	}
	if rc.TaskBackoff > 0 {
		opts.TaskBackoff = rc.TaskBackoff
	}
	if rc.TaskSplay > 0 {
		opts.TaskSplay = rc.TaskSplay
	}
	if rc.TaskTimeout > 0 {
		opts.TaskTimeout = rc.TaskTimeout
	}
	if rc.ReconnectOnFail != nil {
		opts.ReconnectOnFail = *rc.ReconnectOnFail
	}
	if len(rc.TaskStopErrors) > 0 {
		opts.TaskStopErrors = rc.TaskStopErrors
	}
	if len(rc.CredsRetry) > 0 {
		opts.CredsRetry = rc.CredsRetry
	}
	if len(rc.TunnelConnections) > 0 {
		opts.TunnelConnections = rc.TunnelConnections
	}

	return opts
}

// applyDefaults sets default values for configuration
func (m *Manager) applyDefaults() {
	if m.config == nil {
		return
	}

	if m.config.Defaults.OutputFormat == "" {
		m.config.Defaults.OutputFormat = "table"
	}
}
