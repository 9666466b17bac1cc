package extension

import (
	"time"

	"github.com/xraph/finance"
	"github.com/xraph/finance/actuator"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/usage"
)

// Option configures the finance Forge extension.
type Option func(*Extension)

// WithStore sets the store for the finance engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithFinanceOption passes a finance.Option through to the underlying engine.
func WithFinanceOption(opt finance.Option) Option {
	return func(e *Extension) {
		e.financeOpts = append(e.financeOpts, opt)
	}
}

// WithPlugin registers a finance plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.financeOpts = append(e.financeOpts, finance.WithPlugin(p))
	}
}

// WithUsageSource sets where billing fetches usage records from.
func WithUsageSource(src usage.Source) Option {
	return func(e *Extension) {
		e.financeOpts = append(e.financeOpts, finance.WithUsageSource(src))
	}
}

// WithActuator sets the resource actuator.
func WithActuator(a actuator.Actuator) Option {
	return func(e *Extension) {
		e.financeOpts = append(e.financeOpts, finance.WithActuator(a))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableStart leaves the engine stopped on Start.
func WithDisableStart() Option {
	return func(e *Extension) { e.config.DisableStart = true }
}

// WithMetrics registers the Prometheus metrics plugin.
func WithMetrics() Option {
	return func(e *Extension) { e.config.EnableMetrics = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithWorkerInterval sets how often plan workers run.
func WithWorkerInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.WorkerInterval = d }
}

// WithStopTimeout bounds stopping a plan's workers.
func WithStopTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.StopTimeout = d }
}

// WithHookTimeout bounds every plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HookTimeout = d }
}

// WithPlans declares plans applied after the engine starts.
func WithPlans(plans ...PlanConfig) Option {
	return func(e *Extension) { e.config.Plans = append(e.config.Plans, plans...) }
}
