package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/finance"
	"github.com/xraph/finance/actuator"
	"github.com/xraph/finance/actuator/docker"
	audithook "github.com/xraph/finance/audit_hook"
	"github.com/xraph/finance/eventbus"
	"github.com/xraph/finance/observability"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/plankind/builtin"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/store/storeconfig"
	"github.com/xraph/finance/usage"
	"github.com/xraph/finance/usage/remote"
)

// daemon holds the engine and everything that must be released after it.
type daemon struct {
	engine  *finance.Engine
	closers []func() error
}

// Close releases the resources opened alongside the engine, in reverse order.
func (d *daemon) Close() error {
	var errs finance.MultiError
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs.Add(d.closers[i]())
	}
	return errs.ErrOrNil()
}

// buildDaemon opens the store and assembles the engine with every configured
// integration. reg receives the engine metrics; nil disables them.
func buildDaemon(ctx context.Context, cfg Config, reg prometheus.Registerer, logger *slog.Logger) (*daemon, error) {
	s, err := storeconfig.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	d := &daemon{}
	opts, err := engineOptions(cfg, reg, logger, d)
	if err != nil {
		_ = s.Close() //nolint:errcheck // already failing
		_ = d.Close() //nolint:errcheck // already failing
		return nil, err
	}

	d.engine = finance.New(s, opts...)
	return d, nil
}

func engineOptions(cfg Config, reg prometheus.Registerer, logger *slog.Logger, d *daemon) ([]finance.Option, error) {
	opts := builtin.Options()
	opts = append(opts,
		finance.WithLogger(logger),
		finance.WithWorkerInterval(cfg.WorkerInterval),
		finance.WithStopTimeout(cfg.StopTimeout),
		finance.WithHookTimeout(cfg.HookTimeout),
	)

	if cfg.Usage.BaseURL != "" {
		bc := usage.DefaultBreakerConfig()
		if cfg.Usage.BreakerThreshold > 0 {
			bc.FailureThreshold = cfg.Usage.BreakerThreshold
		}
		if cfg.Usage.BreakerTimeout > 0 {
			bc.Timeout = cfg.Usage.BreakerTimeout
		}
		src := usage.NewBreaker(remote.New(cfg.Usage.Config), bc, logger)
		opts = append(opts, finance.WithUsageSource(src))
		logger.Info("usage source configured", "base_url", cfg.Usage.BaseURL)
	}

	act, err := newActuator(cfg.Actuator, logger)
	if err != nil {
		return nil, err
	}
	if act != nil {
		opts = append(opts, finance.WithActuator(act))
	}

	pub, err := newPublisher(cfg.Events, logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, pub.Close)
	opts = append(opts, finance.WithPlugin(eventbus.NewPlugin(pub, eventbus.WithLogger(logger))))

	if reg != nil {
		factory := observability.NewPrometheusFactory(reg)
		opts = append(opts, finance.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	if cfg.Audit {
		opts = append(opts, finance.WithPlugin(audithook.New(auditLogger(logger), audithook.WithLogger(logger))))
	}

	return opts, nil
}

func newActuator(cfg ActuatorConfig, logger *slog.Logger) (actuator.Actuator, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "docker":
		a, err := docker.NewFromEnv(docker.WithLogger(logger), docker.WithStopTimeout(cfg.StopGrace))
		if err != nil {
			return nil, err
		}
		return actuator.NewBreaker(a, cfg.BreakerThreshold, cfg.BreakerTimeout, logger), nil
	}
	return nil, fmt.Errorf("%w: unknown actuator driver %q", finance.ErrConfiguration, cfg.Driver)
}

// newPublisher connects to RabbitMQ when configured. A broker that cannot be
// reached degrades to the no-op publisher so billing keeps running.
func newPublisher(cfg EventsConfig, logger *slog.Logger) (eventbus.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		return eventbus.NewNoopPublisher(logger), nil
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = eventbus.ExchangeName
	}
	pub, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, exchange, logger)
	if err != nil {
		logger.Warn("failed to connect to RabbitMQ, using no-op publisher", "error", err)
		return eventbus.NewNoopPublisher(logger), nil
	}
	logger.Info("connected to RabbitMQ", "exchange", exchange)
	return pub, nil
}

// auditLogger records audit events as structured log lines.
func auditLogger(logger *slog.Logger) audithook.Recorder {
	audit := logger.With("component", "audit")
	return audithook.RecorderFunc(func(ctx context.Context, ev *audithook.AuditEvent) error {
		audit.InfoContext(ctx, ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"category", ev.Category,
			"outcome", ev.Outcome,
			"severity", ev.Severity,
			"metadata", ev.Metadata,
		)
		return nil
	})
}

// applyPlans installs or reconciles every declared plan.
func applyPlans(ctx context.Context, engine *finance.Engine, plans []PlanConfig) error {
	var errs finance.MultiError
	for _, pc := range plans {
		if _, err := engine.ApplyPlan(ctx, &plan.Plan{
			Name:    pc.Name,
			Kind:    pc.Kind,
			Options: pc.Options,
		}); err != nil {
			errs.Add(fmt.Errorf("apply plan %q: %w", pc.Name, err))
		}
	}
	return errs.ErrOrNil()
}

// openStore opens and migrates the configured store for offline commands.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	s, err := storeconfig.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}
