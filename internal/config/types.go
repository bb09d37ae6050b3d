package config

import "time"

// DroverConfig represents the drover configuration file structure
type DroverConfig struct {
	// Inventory is the path to the inventory file
	Inventory string `yaml:"inventory,omitempty" json:"inventory,omitempty" mapstructure:"inventory"`

	// Runner contains execution engine settings
	Runner RunnerConfig `yaml:"runner,omitempty" json:"runner,omitempty" mapstructure:"runner"`

	// Defaults contains default settings for command output
	Defaults DefaultsConfig `yaml:"defaults,omitempty" json:"defaults,omitempty" mapstructure:"defaults"`
}

// RunnerConfig holds the execution engine knobs. Durations accept the usual
// Go syntax (5s, 100ms); zero values select the engine defaults.
type RunnerConfig struct {
	// NumWorkers is the size of the task execution pool
	NumWorkers int `yaml:"numWorkers,omitempty" json:"numWorkers,omitempty" mapstructure:"numWorkers"`

	// NumConnectors is the size of the connection establishment pool
	NumConnectors int `yaml:"numConnectors,omitempty" json:"numConnectors,omitempty" mapstructure:"numConnectors"`

	// ConnectRetry is how many times a failed connection is retried
	ConnectRetry *int `yaml:"connectRetry,omitempty" json:"connectRetry,omitempty" mapstructure:"connectRetry"`

	// ConnectBackoff is the linear backoff unit between connection attempts
	ConnectBackoff time.Duration `yaml:"connectBackoff,omitempty" json:"connectBackoff,omitempty" mapstructure:"connectBackoff"`

	// ConnectSplay is the maximum random delay before a connection attempt
	ConnectSplay time.Duration `yaml:"connectSplay,omitempty" json:"connectSplay,omitempty" mapstructure:"connectSplay"`

	// TaskRetry is how many times a failed task is retried
	TaskRetry *int `yaml:"taskRetry,omitempty" json:"taskRetry,omitempty" mapstructure:"taskRetry"`

	// TaskBackoff is the linear backoff unit between task attempts
	TaskBackoff time.Duration `yaml:"taskBackoff,omitempty" json:"taskBackoff,omitempty" mapstructure:"taskBackoff"`

	// TaskSplay is the maximum random delay before a task attempt
	TaskSplay time.Duration `yaml:"taskSplay,omitempty" json:"taskSplay,omitempty" mapstructure:"taskSplay"`

	// TaskTimeout bounds a whole run
	TaskTimeout time.Duration `yaml:"taskTimeout,omitempty" json:"taskTimeout,omitempty" mapstructure:"taskTimeout"`

	// ReconnectOnFail forces connections to be re-established before a task
	// retry
	ReconnectOnFail *bool `yaml:"reconnectOnFail,omitempty" json:"reconnectOnFail,omitempty" mapstructure:"reconnectOnFail"`

	// TaskStopErrors lists glob patterns of error messages that suppress task
	// retries
	TaskStopErrors []string `yaml:"taskStopErrors,omitempty" json:"taskStopErrors,omitempty" mapstructure:"taskStopErrors"`

	// CredsRetry lists named fallback credential sets tried in order when the
	// primary host credentials fail
	CredsRetry []string `yaml:"credsRetry,omitempty" json:"credsRetry,omitempty" mapstructure:"credsRetry"`

	// TunnelConnections lists connection names routed through a host's jump
	// host when one is configured
	TunnelConnections []string `yaml:"tunnelConnections,omitempty" json:"tunnelConnections,omitempty" mapstructure:"tunnelConnections"`
}

// DefaultsConfig contains default configuration values
type DefaultsConfig struct {
	// OutputFormat is the default output format (table, json, yaml)
	OutputFormat string `yaml:"outputFormat,omitempty" json:"outputFormat,omitempty" mapstructure:"outputFormat"`

	// NoColor disables colored output
	NoColor bool `yaml:"noColor,omitempty" json:"noColor,omitempty" mapstructure:"noColor"`
}
