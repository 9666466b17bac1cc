// Package extension provides the Forge extension adapter for the finance
// engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.finance" or "finance" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/finance"
	"github.com/xraph/finance/observability"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/plankind/builtin"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/store/storeconfig"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "finance"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Federated resource billing and enforcement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the finance engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *finance.Engine
	store       store.Store
	financeOpts []finance.Option
}

// New creates a new finance Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *finance.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.init(context.Background()); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*finance.Engine, error) {
		return e.engine, nil
	})
}

// init opens the configured store when none was provided and builds the
// engine.
func (e *Extension) init(ctx context.Context) error {
	if e.store == nil {
		s, err := storeconfig.Open(ctx, e.config.Store)
		if err != nil {
			return err
		}
		e.store = s
	}
	e.engine = finance.New(e.store, e.buildFinanceOpts()...)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("finance: extension not initialized")
	}

	if !e.config.DisableStart {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
		if err := e.applyPlans(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("finance: engine not initialized")
	}
	return e.engine.Ping(ctx)
}

// buildFinanceOpts constructs finance.Option values from the resolved config.
func (e *Extension) buildFinanceOpts() []finance.Option {
	opts := builtin.Options()
	opts = append(opts,
		finance.WithWorkerInterval(e.config.WorkerInterval),
		finance.WithStopTimeout(e.config.StopTimeout),
	)
	if e.config.HookTimeout > 0 {
		opts = append(opts, finance.WithHookTimeout(e.config.HookTimeout))
	}
	if e.config.EnableMetrics {
		factory := observability.NewPrometheusFactory(nil)
		opts = append(opts, finance.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	// Pass-through options last so they win.
	return append(opts, e.financeOpts...)
}

// applyPlans installs or reconciles the declared plans.
func (e *Extension) applyPlans(ctx context.Context) error {
	var errs finance.MultiError
	for _, pc := range e.config.Plans {
		_, err := e.engine.ApplyPlan(ctx, &plan.Plan{
			Name:    pc.Name,
			Kind:    pc.Kind,
			Options: pc.Options,
		})
		if err != nil {
			errs.Add(fmt.Errorf("apply plan %q: %w", pc.Name, err))
		}
	}
	return errs.ErrOrNil()
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("finance: configuration is required but not found in config files; " +
				"ensure 'extensions.finance' or 'finance' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("finance: configuration loaded",
		forge.F("disable_start", e.config.DisableStart),
		forge.F("enable_metrics", e.config.EnableMetrics),
		forge.F("store_driver", string(e.config.Store.Driver)),
		forge.F("worker_interval", e.config.WorkerInterval),
		forge.F("stop_timeout", e.config.StopTimeout),
		forge.F("plans", len(e.config.Plans)),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.finance", "finance"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("finance: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("finance: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.WorkerInterval == 0 {
		cfg.WorkerInterval = defaults.WorkerInterval
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = defaults.StopTimeout
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableStart {
		yamlConfig.DisableStart = true
	}
	if programmaticConfig.EnableMetrics {
		yamlConfig.EnableMetrics = true
	}

	// Store: YAML takes precedence when it names a backend.
	if yamlConfig.Store == (storeconfig.Config{}) {
		yamlConfig.Store = programmaticConfig.Store
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.WorkerInterval == 0 {
		yamlConfig.WorkerInterval = programmaticConfig.WorkerInterval
	}
	if yamlConfig.StopTimeout == 0 {
		yamlConfig.StopTimeout = programmaticConfig.StopTimeout
	}
	if yamlConfig.HookTimeout == 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}

	// Plans from both sources apply; YAML first.
	yamlConfig.Plans = append(yamlConfig.Plans, programmaticConfig.Plans...)

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
