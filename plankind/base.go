// Package plankind holds the machinery shared by the built-in plan kinds:
// option parsing, the pricing table with optional file hot reload, and the
// billing and enforcement workers.
package plankind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/finance"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/user"
	"github.com/xraph/finance/worker"
)

// Base implements the option, pricing and worker parts of finance.Kind.
// Concrete kinds embed it and call Bind from their constructor.
type Base struct {
	name   string
	deps   finance.Deps
	clock  clockwork.Clock
	logger *slog.Logger

	// mu guards the plan's options and settings.
	mu       sync.RWMutex
	options  map[string]string
	settings finance.Settings
	policy   *pricing.Policy

	// runMu serializes starting and stopping. It is never held while a
	// worker iteration needs mu.
	runMu       sync.Mutex
	watcher     *pricing.Watcher
	billing     *worker.Billing
	enforcement *worker.Enforcement
	billingLoop *worker.Loop
	enforceLoop *worker.Loop
}

// NewBase creates the shared part of a kind named name.
func NewBase(name string, deps finance.Deps) *Base {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = worker.DefaultStopTimeout
	}
	return &Base{
		name:    name,
		deps:    deps,
		clock:   deps.Clock,
		logger:  deps.Logger.With("plan", deps.PlanName, "kind", name),
		options: map[string]string{},
		policy:  mustPolicy(),
	}
}

func mustPolicy() *pricing.Policy {
	p, _ := pricing.NewPolicy() //nolint:errcheck // no rules, cannot fail
	return p
}

// Bind creates the workers for k, the kind embedding b.
func (b *Base) Bind(k finance.Kind) {
	b.billing = worker.NewBilling(b.deps, k)
	b.enforcement = worker.NewEnforcement(b.deps, k)
	b.billingLoop = worker.NewLoop("billing:"+b.deps.PlanName, b.deps.Interval, b.clock, b.deps.Logger,
		func(ctx context.Context) { b.billing.RunOnce(ctx) })
	b.enforceLoop = worker.NewLoop("enforcement:"+b.deps.PlanName, b.deps.Interval, b.clock, b.deps.Logger,
		func(ctx context.Context) { b.enforcement.RunOnce(ctx) })
}

// Name returns the kind name.
func (b *Base) Name() string { return b.name }

// PlanName returns the name of the plan this kind serves.
func (b *Base) PlanName() string { return b.deps.PlanName }

// Clock returns the clock the kind and its workers use.
func (b *Base) Clock() clockwork.Clock { return b.clock }

// Billing returns the plan's billing worker.
func (b *Base) Billing() *worker.Billing { return b.billing }

// Enforcement returns the plan's enforcement worker.
func (b *Base) Enforcement() *worker.Enforcement { return b.enforcement }

// SetOptions validates opts and makes them the plan's options. On failure
// the previous options stay in effect.
func (b *Base) SetOptions(opts map[string]string) error {
	settings, policy, err := finance.ParseSettings(opts)
	if err != nil {
		return err
	}

	b.mu.Lock()
	fileChanged := settings.PricingFile != b.settings.PricingFile
	b.options = maps.Clone(opts)
	b.settings = settings
	b.policy.Replace(policy)
	b.mu.Unlock()

	if fileChanged {
		b.runMu.Lock()
		defer b.runMu.Unlock()
		if b.billingLoop != nil && b.billingLoop.Running() {
			b.stopWatcher()
			if err := b.startWatcher(settings.PricingFile); err != nil {
				b.logger.Warn("pricing file watch failed", "error", err)
			}
		}
	}

	b.logger.Debug("plan options applied", "rules", policy.Len())
	return nil
}

// Options returns a copy of the plan's options.
func (b *Base) Options() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.options)
}

// Settings returns the parsed options.
func (b *Base) Settings() finance.Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// Pricing returns the plan's pricing table. The pointer is stable for the
// life of the plan; reloads replace its contents.
func (b *Base) Pricing() *pricing.Policy { return b.policy }

// ReloadPricing re-reads the pricing file, if one is configured.
func (b *Base) ReloadPricing() error {
	path := b.Settings().PricingFile
	if path == "" {
		return nil
	}
	p, err := pricing.LoadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", finance.ErrInvalidOption, plan.OptPricingFile, err)
	}

	b.mu.Lock()
	b.policy.Replace(p)
	b.mu.Unlock()

	b.logger.Info("pricing reloaded", "path", path, "rules", p.Len())
	return nil
}

// RegisterUser stamps the billing clock so that a new member is charged
// from the moment it joined.
func (b *Base) RegisterUser(_ context.Context, u *user.User) error {
	u.LastBillingTime = b.clock.Now()
	if !u.State.Valid() {
		u.State = user.StateDefault
	}
	return nil
}

// Settle bills u for its unbilled window under this plan.
func (b *Base) Settle(ctx context.Context, u *user.User) (*finance.Settlement, error) {
	if b.billing == nil {
		return nil, fmt.Errorf("%w: kind %q is not bound", finance.ErrInternal, b.name)
	}
	return b.billing.Settle(ctx, u)
}

// MarkOverdue moves WAITING invoices past their due date to DEFAULTING.
func (b *Base) MarkOverdue(u *user.User, now time.Time) []*invoice.Invoice {
	var out []*invoice.Invoice
	for _, inv := range u.Invoices {
		if inv.IsOverdue(now) {
			inv.SetState(invoice.StateDefaulting, now)
			out = append(out, inv)
		}
	}
	return out
}

// StartWorkers starts the billing and enforcement loops and, when the plan
// reads its pricing from a file, the file watcher.
func (b *Base) StartWorkers(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.billingLoop == nil {
		return fmt.Errorf("%w: kind %q is not bound", finance.ErrInternal, b.name)
	}
	if b.billingLoop.Running() {
		return nil
	}

	if path := b.Settings().PricingFile; path != "" {
		if err := b.startWatcher(path); err != nil {
			b.logger.Warn("pricing file watch failed", "error", err)
		}
	}

	if err := b.billingLoop.Start(ctx); err != nil {
		b.stopWatcher()
		return err
	}
	if err := b.enforceLoop.Start(ctx); err != nil {
		_ = b.billingLoop.Stop(ctx, b.deps.StopTimeout) //nolint:errcheck // reporting the start failure
		b.stopWatcher()
		return err
	}

	b.logger.Info("plan workers started", "interval", b.deps.Interval)
	return nil
}

// StopWorkers stops both loops and waits for them to exit.
func (b *Base) StopWorkers(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.billingLoop == nil {
		return nil
	}

	b.stopWatcher()
	err := errors.Join(
		b.billingLoop.Stop(ctx, b.deps.StopTimeout),
		b.enforceLoop.Stop(ctx, b.deps.StopTimeout),
	)
	if err != nil {
		return err
	}

	b.logger.Info("plan workers stopped")
	return nil
}

// Running reports whether the workers are running.
func (b *Base) Running() bool {
	return b.billingLoop != nil && b.billingLoop.Running()
}

func (b *Base) startWatcher(path string) error {
	if path == "" {
		return nil
	}
	w, err := pricing.NewWatcher(path, func(p *pricing.Policy) {
		b.mu.Lock()
		b.policy.Replace(p)
		b.mu.Unlock()
	}, pricing.WithWatcherLogger(b.logger))
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}
	b.watcher = w
	return nil
}

func (b *Base) stopWatcher() {
	if b.watcher != nil {
		b.watcher.Stop()
		b.watcher = nil
	}
}
