package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// Routing keys of the published events.
const (
	KeyPlanInstalled         = "finance.plan.installed"
	KeyPlanUninstalled       = "finance.plan.uninstalled"
	KeyPlanUpdated           = "finance.plan.updated"
	KeyUserRegistered        = "finance.user.registered"
	KeyUserUnregistered      = "finance.user.unregistered"
	KeyUserRemoved           = "finance.user.removed"
	KeyPlanChanged           = "finance.user.plan_changed"
	KeyCreditsAdded          = "finance.credits.added"
	KeyCreditsDeducted       = "finance.credits.deducted"
	KeyInvoiceGenerated      = "finance.invoice.generated"
	KeyInvoicePaid           = "finance.invoice.paid"
	KeyInvoiceDefaulted      = "finance.invoice.defaulted"
	KeyBillingFailed         = "finance.billing.failed"
	KeyEnforcementTransition = "finance.enforcement.transition"
	KeyResourcesStopped      = "finance.resources.stopped"
	KeyResourcesResumed      = "finance.resources.resumed"
)

// Event is the JSON envelope of every published message.
type Event struct {
	ID         string         `json:"id"`
	RoutingKey string         `json:"routing_key"`
	OccurredAt time.Time      `json:"occurred_at"`
	UserID     string         `json:"user_id,omitempty"`
	ProviderID string         `json:"provider_id,omitempty"`
	Plan       string         `json:"plan,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Plugin)(nil)
	_ plugin.OnShutdown              = (*Plugin)(nil)
	_ plugin.OnPlanInstalled         = (*Plugin)(nil)
	_ plugin.OnPlanUninstalled       = (*Plugin)(nil)
	_ plugin.OnPlanUpdated           = (*Plugin)(nil)
	_ plugin.OnUserRegistered        = (*Plugin)(nil)
	_ plugin.OnUserUnregistered      = (*Plugin)(nil)
	_ plugin.OnUserRemoved           = (*Plugin)(nil)
	_ plugin.OnPlanChanged           = (*Plugin)(nil)
	_ plugin.OnCreditsAdded          = (*Plugin)(nil)
	_ plugin.OnCreditsDeducted       = (*Plugin)(nil)
	_ plugin.OnInvoiceGenerated      = (*Plugin)(nil)
	_ plugin.OnInvoicePaid           = (*Plugin)(nil)
	_ plugin.OnInvoiceDefaulted      = (*Plugin)(nil)
	_ plugin.OnBillingFailed         = (*Plugin)(nil)
	_ plugin.OnEnforcementTransition = (*Plugin)(nil)
	_ plugin.OnResourcesStopped      = (*Plugin)(nil)
	_ plugin.OnResourcesResumed      = (*Plugin)(nil)
)

// Plugin publishes engine lifecycle events through a Publisher.
type Plugin struct {
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// PluginOption configures a Plugin.
type PluginOption func(*Plugin)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PluginOption {
	return func(p *Plugin) { p.logger = logger }
}

// WithNow sets the timestamp source of events.
func WithNow(now func() time.Time) PluginOption {
	return func(p *Plugin) { p.now = now }
}

// NewPlugin creates a plugin publishing through pub.
func NewPlugin(pub Publisher, opts ...PluginOption) *Plugin {
	p := &Plugin{
		pub:    pub,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "eventbus" }

// OnShutdown closes the publisher.
func (p *Plugin) OnShutdown(_ context.Context) error {
	return p.pub.Close()
}

// OnPlanInstalled implements plugin.OnPlanInstalled.
func (p *Plugin) OnPlanInstalled(ctx context.Context, pl *plan.Plan) error {
	return p.publish(ctx, KeyPlanInstalled, Event{Plan: pl.Name, Data: map[string]any{
		"kind":    pl.Kind,
		"options": pl.Options,
	}})
}

// OnPlanUninstalled implements plugin.OnPlanUninstalled.
func (p *Plugin) OnPlanUninstalled(ctx context.Context, name string) error {
	return p.publish(ctx, KeyPlanUninstalled, Event{Plan: name})
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (p *Plugin) OnPlanUpdated(ctx context.Context, _, newPlan *plan.Plan) error {
	return p.publish(ctx, KeyPlanUpdated, Event{Plan: newPlan.Name, Data: map[string]any{
		"options": newPlan.Options,
	}})
}

// OnUserRegistered implements plugin.OnUserRegistered.
func (p *Plugin) OnUserRegistered(ctx context.Context, u *user.User) error {
	return p.publish(ctx, KeyUserRegistered, userEvent(u, u.Plan, nil))
}

// OnUserUnregistered implements plugin.OnUserUnregistered.
func (p *Plugin) OnUserUnregistered(ctx context.Context, u *user.User, planName string) error {
	return p.publish(ctx, KeyUserUnregistered, userEvent(u, planName, nil))
}

// OnUserRemoved implements plugin.OnUserRemoved.
func (p *Plugin) OnUserRemoved(ctx context.Context, key user.Key) error {
	return p.publish(ctx, KeyUserRemoved, Event{UserID: key.UserID, ProviderID: key.ProviderID})
}

// OnPlanChanged implements plugin.OnPlanChanged.
func (p *Plugin) OnPlanChanged(ctx context.Context, u *user.User, from, to string) error {
	return p.publish(ctx, KeyPlanChanged, userEvent(u, to, map[string]any{"from": from}))
}

// OnCreditsAdded implements plugin.OnCreditsAdded.
func (p *Plugin) OnCreditsAdded(ctx context.Context, u *user.User, amount types.Money) error {
	return p.publish(ctx, KeyCreditsAdded, userEvent(u, u.Plan, creditsData(u, amount)))
}

// OnCreditsDeducted implements plugin.OnCreditsDeducted.
func (p *Plugin) OnCreditsDeducted(ctx context.Context, u *user.User, amount types.Money) error {
	return p.publish(ctx, KeyCreditsDeducted, userEvent(u, u.Plan, creditsData(u, amount)))
}

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (p *Plugin) OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error {
	return p.publish(ctx, KeyInvoiceGenerated, invoiceEvent(inv))
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (p *Plugin) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return p.publish(ctx, KeyInvoicePaid, invoiceEvent(inv))
}

// OnInvoiceDefaulted implements plugin.OnInvoiceDefaulted.
func (p *Plugin) OnInvoiceDefaulted(ctx context.Context, inv *invoice.Invoice) error {
	return p.publish(ctx, KeyInvoiceDefaulted, invoiceEvent(inv))
}

// OnBillingFailed implements plugin.OnBillingFailed.
func (p *Plugin) OnBillingFailed(ctx context.Context, key user.Key, planName string, err error) error {
	return p.publish(ctx, KeyBillingFailed, Event{
		UserID:     key.UserID,
		ProviderID: key.ProviderID,
		Plan:       planName,
		Data:       map[string]any{"error": err.Error()},
	})
}

// OnEnforcementTransition implements plugin.OnEnforcementTransition.
func (p *Plugin) OnEnforcementTransition(ctx context.Context, u *user.User, from, to user.ResourceState) error {
	return p.publish(ctx, KeyEnforcementTransition, userEvent(u, u.Plan, map[string]any{
		"from": string(from),
		"to":   string(to),
	}))
}

// OnResourcesStopped implements plugin.OnResourcesStopped.
func (p *Plugin) OnResourcesStopped(ctx context.Context, u *user.User, op string) error {
	return p.publish(ctx, KeyResourcesStopped, userEvent(u, u.Plan, map[string]any{"operation": op}))
}

// OnResourcesResumed implements plugin.OnResourcesResumed.
func (p *Plugin) OnResourcesResumed(ctx context.Context, u *user.User) error {
	return p.publish(ctx, KeyResourcesResumed, userEvent(u, u.Plan, nil))
}

func userEvent(u *user.User, planName string, data map[string]any) Event {
	return Event{UserID: u.UserID, ProviderID: u.ProviderID, Plan: planName, Data: data}
}

func creditsData(u *user.User, amount types.Money) map[string]any {
	data := map[string]any{"amount": amount.String()}
	if u.Credits != nil {
		data["balance"] = u.Credits.Balance.String()
	}
	return data
}

func invoiceEvent(inv *invoice.Invoice) Event {
	return Event{
		UserID:     inv.UserID,
		ProviderID: inv.ProviderID,
		Plan:       inv.PlanName,
		Data: map[string]any{
			"invoice_id": inv.ID.String(),
			"state":      string(inv.State),
			"total":      inv.Total.String(),
			"due_date":   inv.DueDate,
		},
	}
}

func (p *Plugin) publish(ctx context.Context, key string, evt Event) error {
	evt.ID = id.NewEventID().String()
	evt.RoutingKey = key
	evt.OccurredAt = p.now().UTC()

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("eventbus: encode %s: %w", key, err)
	}
	if err := p.pub.Publish(ctx, key, payload); err != nil {
		p.logger.Warn("eventbus: publish failed",
			"routing_key", key,
			"event_id", evt.ID,
			"error", err,
		)
		return err
	}
	return nil
}
