// Package observability provides a metrics extension for the finance engine
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnPlanInstalled         = (*MetricsExtension)(nil)
	_ plugin.OnPlanUpdated           = (*MetricsExtension)(nil)
	_ plugin.OnPlanUninstalled       = (*MetricsExtension)(nil)
	_ plugin.OnUserRegistered        = (*MetricsExtension)(nil)
	_ plugin.OnUserUnregistered      = (*MetricsExtension)(nil)
	_ plugin.OnUserRemoved           = (*MetricsExtension)(nil)
	_ plugin.OnPlanChanged           = (*MetricsExtension)(nil)
	_ plugin.OnCreditsAdded          = (*MetricsExtension)(nil)
	_ plugin.OnCreditsDeducted       = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceGenerated      = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid           = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceDefaulted      = (*MetricsExtension)(nil)
	_ plugin.OnBillingFailed         = (*MetricsExtension)(nil)
	_ plugin.OnEnforcementTransition = (*MetricsExtension)(nil)
	_ plugin.OnResourcesStopped      = (*MetricsExtension)(nil)
	_ plugin.OnResourcesResumed      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a finance plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Plan metrics
	PlanInstalled   Counter
	PlanUpdated     Counter
	PlanUninstalled Counter

	// User metrics
	UserRegistered   Counter
	UserUnregistered Counter
	UserRemoved      Counter
	PlanChanged      Counter

	// Credits metrics
	CreditsAdded    Counter
	CreditsDeducted Counter
	CreditsAmount   Histogram
	DeductedAmount  Histogram

	// Invoice metrics
	InvoiceGenerated Counter
	InvoicePaid      Counter
	InvoiceDefaulted Counter
	InvoiceTotal     Histogram
	BillingFailures  Counter

	// Enforcement metrics
	EnforcementTransitions Counter
	UsersWaiting           Counter
	ResourcesStopped       Counter
	ResourcesHibernated    Counter
	ResourcesResumed       Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions or NewPrometheusFactory standalone.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Plan metrics
		PlanInstalled:   factory.Counter("finance.plan.installed"),
		PlanUpdated:     factory.Counter("finance.plan.updated"),
		PlanUninstalled: factory.Counter("finance.plan.uninstalled"),

		// User metrics
		UserRegistered:   factory.Counter("finance.user.registered"),
		UserUnregistered: factory.Counter("finance.user.unregistered"),
		UserRemoved:      factory.Counter("finance.user.removed"),
		PlanChanged:      factory.Counter("finance.user.plan_changed"),

		// Credits metrics
		CreditsAdded:    factory.Counter("finance.credits.added"),
		CreditsDeducted: factory.Counter("finance.credits.deducted"),
		CreditsAmount:   factory.Histogram("finance.credits.added_amount"),
		DeductedAmount:  factory.Histogram("finance.credits.deducted_amount"),

		// Invoice metrics
		InvoiceGenerated: factory.Counter("finance.invoice.generated"),
		InvoicePaid:      factory.Counter("finance.invoice.paid"),
		InvoiceDefaulted: factory.Counter("finance.invoice.defaulted"),
		InvoiceTotal:     factory.Histogram("finance.invoice.total_amount"),
		BillingFailures:  factory.Counter("finance.billing.failures"),

		// Enforcement metrics
		EnforcementTransitions: factory.Counter("finance.enforcement.transitions"),
		UsersWaiting:           factory.Counter("finance.enforcement.waiting"),
		ResourcesStopped:       factory.Counter("finance.resources.stopped"),
		ResourcesHibernated:    factory.Counter("finance.resources.hibernated"),
		ResourcesResumed:       factory.Counter("finance.resources.resumed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanInstalled implements plugin.OnPlanInstalled.
func (m *MetricsExtension) OnPlanInstalled(_ context.Context, _ *plan.Plan) error {
	m.PlanInstalled.Inc()
	return nil
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (m *MetricsExtension) OnPlanUpdated(_ context.Context, _, _ *plan.Plan) error {
	m.PlanUpdated.Inc()
	return nil
}

// OnPlanUninstalled implements plugin.OnPlanUninstalled.
func (m *MetricsExtension) OnPlanUninstalled(_ context.Context, _ string) error {
	m.PlanUninstalled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// User lifecycle hooks
// ──────────────────────────────────────────────────

// OnUserRegistered implements plugin.OnUserRegistered.
func (m *MetricsExtension) OnUserRegistered(_ context.Context, _ *user.User) error {
	m.UserRegistered.Inc()
	return nil
}

// OnUserUnregistered implements plugin.OnUserUnregistered.
func (m *MetricsExtension) OnUserUnregistered(_ context.Context, _ *user.User, _ string) error {
	m.UserUnregistered.Inc()
	return nil
}

// OnUserRemoved implements plugin.OnUserRemoved.
func (m *MetricsExtension) OnUserRemoved(_ context.Context, _ user.Key) error {
	m.UserRemoved.Inc()
	return nil
}

// OnPlanChanged implements plugin.OnPlanChanged.
func (m *MetricsExtension) OnPlanChanged(_ context.Context, _ *user.User, _, _ string) error {
	m.PlanChanged.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnCreditsAdded implements plugin.OnCreditsAdded.
func (m *MetricsExtension) OnCreditsAdded(_ context.Context, _ *user.User, amount types.Money) error {
	m.CreditsAdded.Inc()
	m.CreditsAmount.Observe(amount.Float64())
	return nil
}

// OnCreditsDeducted implements plugin.OnCreditsDeducted.
func (m *MetricsExtension) OnCreditsDeducted(_ context.Context, _ *user.User, amount types.Money) error {
	m.CreditsDeducted.Inc()
	m.DeductedAmount.Observe(amount.Float64())
	return nil
}

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (m *MetricsExtension) OnInvoiceGenerated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceGenerated.Inc()
	m.InvoiceTotal.Observe(inv.Total.Float64())
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceDefaulted implements plugin.OnInvoiceDefaulted.
func (m *MetricsExtension) OnInvoiceDefaulted(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceDefaulted.Inc()
	return nil
}

// OnBillingFailed implements plugin.OnBillingFailed.
func (m *MetricsExtension) OnBillingFailed(_ context.Context, _ user.Key, _ string, _ error) error {
	m.BillingFailures.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Enforcement hooks
// ──────────────────────────────────────────────────

// OnEnforcementTransition implements plugin.OnEnforcementTransition.
func (m *MetricsExtension) OnEnforcementTransition(_ context.Context, _ *user.User, _, to user.ResourceState) error {
	m.EnforcementTransitions.Inc()
	if to == user.StateWaitingForStop {
		m.UsersWaiting.Inc()
	}
	return nil
}

// OnResourcesStopped implements plugin.OnResourcesStopped.
func (m *MetricsExtension) OnResourcesStopped(_ context.Context, _ *user.User, op string) error {
	if op == "hibernate" {
		m.ResourcesHibernated.Inc()
		return nil
	}
	m.ResourcesStopped.Inc()
	return nil
}

// OnResourcesResumed implements plugin.OnResourcesResumed.
func (m *MetricsExtension) OnResourcesResumed(_ context.Context, _ *user.User) error {
	m.ResourcesResumed.Inc()
	return nil
}
