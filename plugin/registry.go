package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onPlanInstalled         []OnPlanInstalled
	onPlanUninstalled       []OnPlanUninstalled
	onPlanUpdated           []OnPlanUpdated
	onUserRegistered        []OnUserRegistered
	onUserUnregistered      []OnUserUnregistered
	onUserRemoved           []OnUserRemoved
	onPlanChanged           []OnPlanChanged
	onCreditsDeducted       []OnCreditsDeducted
	onCreditsAdded          []OnCreditsAdded
	onInvoiceGenerated      []OnInvoiceGenerated
	onInvoicePaid           []OnInvoicePaid
	onInvoiceDefaulted      []OnInvoiceDefaulted
	onBillingFailed         []OnBillingFailed
	onResourcesStopped      []OnResourcesStopped
	onResourcesResumed      []OnResourcesResumed
	onEnforcementTransition []OnEnforcementTransition
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPlanInstalled); ok {
		r.onPlanInstalled = append(r.onPlanInstalled, v)
	}
	if v, ok := p.(OnPlanUninstalled); ok {
		r.onPlanUninstalled = append(r.onPlanUninstalled, v)
	}
	if v, ok := p.(OnPlanUpdated); ok {
		r.onPlanUpdated = append(r.onPlanUpdated, v)
	}
	if v, ok := p.(OnUserRegistered); ok {
		r.onUserRegistered = append(r.onUserRegistered, v)
	}
	if v, ok := p.(OnUserUnregistered); ok {
		r.onUserUnregistered = append(r.onUserUnregistered, v)
	}
	if v, ok := p.(OnUserRemoved); ok {
		r.onUserRemoved = append(r.onUserRemoved, v)
	}
	if v, ok := p.(OnPlanChanged); ok {
		r.onPlanChanged = append(r.onPlanChanged, v)
	}
	if v, ok := p.(OnCreditsDeducted); ok {
		r.onCreditsDeducted = append(r.onCreditsDeducted, v)
	}
	if v, ok := p.(OnCreditsAdded); ok {
		r.onCreditsAdded = append(r.onCreditsAdded, v)
	}
	if v, ok := p.(OnInvoiceGenerated); ok {
		r.onInvoiceGenerated = append(r.onInvoiceGenerated, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnInvoiceDefaulted); ok {
		r.onInvoiceDefaulted = append(r.onInvoiceDefaulted, v)
	}
	if v, ok := p.(OnBillingFailed); ok {
		r.onBillingFailed = append(r.onBillingFailed, v)
	}
	if v, ok := p.(OnResourcesStopped); ok {
		r.onResourcesStopped = append(r.onResourcesStopped, v)
	}
	if v, ok := p.(OnResourcesResumed); ok {
		r.onResourcesResumed = append(r.onResourcesResumed, v)
	}
	if v, ok := p.(OnEnforcementTransition); ok {
		r.onEnforcementTransition = append(r.onEnforcementTransition, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns the names of the hooks p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			names = append(names, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnPlanInstalled)(nil)).Elem(), "OnPlanInstalled")
	check(reflect.TypeOf((*OnPlanUninstalled)(nil)).Elem(), "OnPlanUninstalled")
	check(reflect.TypeOf((*OnPlanUpdated)(nil)).Elem(), "OnPlanUpdated")
	check(reflect.TypeOf((*OnUserRegistered)(nil)).Elem(), "OnUserRegistered")
	check(reflect.TypeOf((*OnUserUnregistered)(nil)).Elem(), "OnUserUnregistered")
	check(reflect.TypeOf((*OnUserRemoved)(nil)).Elem(), "OnUserRemoved")
	check(reflect.TypeOf((*OnPlanChanged)(nil)).Elem(), "OnPlanChanged")
	check(reflect.TypeOf((*OnCreditsDeducted)(nil)).Elem(), "OnCreditsDeducted")
	check(reflect.TypeOf((*OnCreditsAdded)(nil)).Elem(), "OnCreditsAdded")
	check(reflect.TypeOf((*OnInvoiceGenerated)(nil)).Elem(), "OnInvoiceGenerated")
	check(reflect.TypeOf((*OnInvoicePaid)(nil)).Elem(), "OnInvoicePaid")
	check(reflect.TypeOf((*OnInvoiceDefaulted)(nil)).Elem(), "OnInvoiceDefaulted")
	check(reflect.TypeOf((*OnBillingFailed)(nil)).Elem(), "OnBillingFailed")
	check(reflect.TypeOf((*OnResourcesStopped)(nil)).Elem(), "OnResourcesStopped")
	check(reflect.TypeOf((*OnResourcesResumed)(nil)).Elem(), "OnResourcesResumed")
	check(reflect.TypeOf((*OnEnforcementTransition)(nil)).Elem(), "OnEnforcementTransition")

	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every cached plugin of a hook. Failures are logged.
func emit[P Plugin](ctx context.Context, r *Registry, hook string, plugins func(*Registry) []P, fn func(P) error) {
	if r == nil {
		return
	}
	r.mu.RLock()
	targets := plugins(r)
	r.mu.RUnlock()

	for _, p := range targets {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitPlanInstalled emits a plan installed event.
func (r *Registry) EmitPlanInstalled(ctx context.Context, p *plan.Plan) {
	emit(ctx, r, "OnPlanInstalled", func(r *Registry) []OnPlanInstalled { return r.onPlanInstalled },
		func(h OnPlanInstalled) error { return h.OnPlanInstalled(ctx, p) })
}

// EmitPlanUninstalled emits a plan uninstalled event.
func (r *Registry) EmitPlanUninstalled(ctx context.Context, name string) {
	emit(ctx, r, "OnPlanUninstalled", func(r *Registry) []OnPlanUninstalled { return r.onPlanUninstalled },
		func(h OnPlanUninstalled) error { return h.OnPlanUninstalled(ctx, name) })
}

// EmitPlanUpdated emits a plan updated event.
func (r *Registry) EmitPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) {
	emit(ctx, r, "OnPlanUpdated", func(r *Registry) []OnPlanUpdated { return r.onPlanUpdated },
		func(h OnPlanUpdated) error { return h.OnPlanUpdated(ctx, oldPlan, newPlan) })
}

// EmitUserRegistered emits a user registered event.
func (r *Registry) EmitUserRegistered(ctx context.Context, u *user.User) {
	emit(ctx, r, "OnUserRegistered", func(r *Registry) []OnUserRegistered { return r.onUserRegistered },
		func(h OnUserRegistered) error { return h.OnUserRegistered(ctx, u) })
}

// EmitUserUnregistered emits a user unregistered event.
func (r *Registry) EmitUserUnregistered(ctx context.Context, u *user.User, planName string) {
	emit(ctx, r, "OnUserUnregistered", func(r *Registry) []OnUserUnregistered { return r.onUserUnregistered },
		func(h OnUserUnregistered) error { return h.OnUserUnregistered(ctx, u, planName) })
}

// EmitUserRemoved emits a user removed event.
func (r *Registry) EmitUserRemoved(ctx context.Context, key user.Key) {
	emit(ctx, r, "OnUserRemoved", func(r *Registry) []OnUserRemoved { return r.onUserRemoved },
		func(h OnUserRemoved) error { return h.OnUserRemoved(ctx, key) })
}

// EmitPlanChanged emits a plan changed event.
func (r *Registry) EmitPlanChanged(ctx context.Context, u *user.User, from, to string) {
	emit(ctx, r, "OnPlanChanged", func(r *Registry) []OnPlanChanged { return r.onPlanChanged },
		func(h OnPlanChanged) error { return h.OnPlanChanged(ctx, u, from, to) })
}

// EmitCreditsDeducted emits a credits deducted event.
func (r *Registry) EmitCreditsDeducted(ctx context.Context, u *user.User, amount types.Money) {
	emit(ctx, r, "OnCreditsDeducted", func(r *Registry) []OnCreditsDeducted { return r.onCreditsDeducted },
		func(h OnCreditsDeducted) error { return h.OnCreditsDeducted(ctx, u, amount) })
}

// EmitCreditsAdded emits a credits added event.
func (r *Registry) EmitCreditsAdded(ctx context.Context, u *user.User, amount types.Money) {
	emit(ctx, r, "OnCreditsAdded", func(r *Registry) []OnCreditsAdded { return r.onCreditsAdded },
		func(h OnCreditsAdded) error { return h.OnCreditsAdded(ctx, u, amount) })
}

// EmitInvoiceGenerated emits an invoice generated event.
func (r *Registry) EmitInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoiceGenerated", func(r *Registry) []OnInvoiceGenerated { return r.onInvoiceGenerated },
		func(h OnInvoiceGenerated) error { return h.OnInvoiceGenerated(ctx, inv) })
}

// EmitInvoicePaid emits an invoice paid event.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoicePaid", func(r *Registry) []OnInvoicePaid { return r.onInvoicePaid },
		func(h OnInvoicePaid) error { return h.OnInvoicePaid(ctx, inv) })
}

// EmitInvoiceDefaulted emits an invoice defaulted event.
func (r *Registry) EmitInvoiceDefaulted(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoiceDefaulted", func(r *Registry) []OnInvoiceDefaulted { return r.onInvoiceDefaulted },
		func(h OnInvoiceDefaulted) error { return h.OnInvoiceDefaulted(ctx, inv) })
}

// EmitBillingFailed emits a billing failure event.
func (r *Registry) EmitBillingFailed(ctx context.Context, key user.Key, planName string, cause error) {
	emit(ctx, r, "OnBillingFailed", func(r *Registry) []OnBillingFailed { return r.onBillingFailed },
		func(h OnBillingFailed) error { return h.OnBillingFailed(ctx, key, planName, cause) })
}

// EmitResourcesStopped emits a resources stopped event.
func (r *Registry) EmitResourcesStopped(ctx context.Context, u *user.User, op string) {
	emit(ctx, r, "OnResourcesStopped", func(r *Registry) []OnResourcesStopped { return r.onResourcesStopped },
		func(h OnResourcesStopped) error { return h.OnResourcesStopped(ctx, u, op) })
}

// EmitResourcesResumed emits a resources resumed event.
func (r *Registry) EmitResourcesResumed(ctx context.Context, u *user.User) {
	emit(ctx, r, "OnResourcesResumed", func(r *Registry) []OnResourcesResumed { return r.onResourcesResumed },
		func(h OnResourcesResumed) error { return h.OnResourcesResumed(ctx, u) })
}

// EmitEnforcementTransition emits an enforcement state change event.
func (r *Registry) EmitEnforcementTransition(ctx context.Context, u *user.User, from, to user.ResourceState) {
	emit(ctx, r, "OnEnforcementTransition", func(r *Registry) []OnEnforcementTransition { return r.onEnforcementTransition },
		func(h OnEnforcementTransition) error { return h.OnEnforcementTransition(ctx, u, from, to) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
