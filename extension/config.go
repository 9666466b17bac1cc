package extension

import (
	"time"

	"github.com/xraph/finance"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/store/storeconfig"
)

// PlanConfig declares a plan the extension applies on start.
type PlanConfig struct {
	Name    string            `json:"name" mapstructure:"name" yaml:"name"`
	Kind    string            `json:"kind" mapstructure:"kind" yaml:"kind"`
	Options map[string]string `json:"options" mapstructure:"options" yaml:"options"`
}

// Config holds the finance extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.finance" or "finance" keys).
type Config struct {
	// DisableStart leaves the engine stopped on Start: no store migration,
	// no restore and no workers.
	DisableStart bool `json:"disable_start" mapstructure:"disable_start" yaml:"disable_start"`

	// EnableMetrics registers the Prometheus metrics plugin on the default
	// registerer.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`

	// Store selects the backend when no store was set programmatically.
	Store storeconfig.Config `json:"store" mapstructure:"store" yaml:"store"`

	// WorkerInterval is how often plan workers run (default: 10s).
	WorkerInterval time.Duration `json:"worker_interval" mapstructure:"worker_interval" yaml:"worker_interval"`

	// StopTimeout bounds stopping a plan's workers (default: 30s).
	StopTimeout time.Duration `json:"stop_timeout" mapstructure:"stop_timeout" yaml:"stop_timeout"`

	// HookTimeout bounds every plugin hook call (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// Plans are applied after the engine starts.
	Plans []PlanConfig `json:"plans" mapstructure:"plans" yaml:"plans"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorkerInterval: finance.DefaultWorkerInterval,
		StopTimeout:    finance.DefaultStopTimeout,
		HookTimeout:    plugin.DefaultHookTimeout,
	}
}
