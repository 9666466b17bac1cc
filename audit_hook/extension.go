// Package audithook bridges finance lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnPlanInstalled         = (*Extension)(nil)
	_ plugin.OnPlanUpdated           = (*Extension)(nil)
	_ plugin.OnPlanUninstalled       = (*Extension)(nil)
	_ plugin.OnUserRegistered        = (*Extension)(nil)
	_ plugin.OnUserUnregistered      = (*Extension)(nil)
	_ plugin.OnUserRemoved           = (*Extension)(nil)
	_ plugin.OnPlanChanged           = (*Extension)(nil)
	_ plugin.OnCreditsAdded          = (*Extension)(nil)
	_ plugin.OnCreditsDeducted       = (*Extension)(nil)
	_ plugin.OnInvoiceGenerated      = (*Extension)(nil)
	_ plugin.OnInvoicePaid           = (*Extension)(nil)
	_ plugin.OnInvoiceDefaulted      = (*Extension)(nil)
	_ plugin.OnBillingFailed         = (*Extension)(nil)
	_ plugin.OnEnforcementTransition = (*Extension)(nil)
	_ plugin.OnResourcesStopped      = (*Extension)(nil)
	_ plugin.OnResourcesResumed      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges finance lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanInstalled implements plugin.OnPlanInstalled.
func (e *Extension) OnPlanInstalled(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanInstalled, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.Name, CategoryBilling, nil,
		"kind", p.Kind,
	)
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (e *Extension) OnPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) error {
	changed := make([]string, 0)
	for k, v := range newPlan.Options {
		if oldPlan.Options[k] != v {
			changed = append(changed, k)
		}
	}
	for k := range oldPlan.Options {
		if _, ok := newPlan.Options[k]; !ok {
			changed = append(changed, k)
		}
	}
	return e.record(ctx, ActionPlanUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, newPlan.Name, CategoryBilling, nil,
		"changed_options", changed,
	)
}

// OnPlanUninstalled implements plugin.OnPlanUninstalled.
func (e *Extension) OnPlanUninstalled(ctx context.Context, name string) error {
	return e.record(ctx, ActionPlanUninstalled, SeverityInfo, OutcomeSuccess,
		ResourcePlan, name, CategoryBilling, nil,
	)
}

// ──────────────────────────────────────────────────
// User lifecycle hooks
// ──────────────────────────────────────────────────

// OnUserRegistered implements plugin.OnUserRegistered.
func (e *Extension) OnUserRegistered(ctx context.Context, u *user.User) error {
	return e.record(ctx, ActionUserRegistered, SeverityInfo, OutcomeSuccess,
		ResourceUser, u.Key.String(), CategorySubscription, nil,
		"plan", u.Plan,
	)
}

// OnUserUnregistered implements plugin.OnUserUnregistered.
func (e *Extension) OnUserUnregistered(ctx context.Context, u *user.User, planName string) error {
	return e.record(ctx, ActionUserUnregistered, SeverityInfo, OutcomeSuccess,
		ResourceUser, u.Key.String(), CategorySubscription, nil,
		"plan", planName,
	)
}

// OnUserRemoved implements plugin.OnUserRemoved.
func (e *Extension) OnUserRemoved(ctx context.Context, key user.Key) error {
	return e.record(ctx, ActionUserRemoved, SeverityWarning, OutcomeSuccess,
		ResourceUser, key.String(), CategorySubscription, nil,
	)
}

// OnPlanChanged implements plugin.OnPlanChanged.
func (e *Extension) OnPlanChanged(ctx context.Context, u *user.User, from, to string) error {
	return e.record(ctx, ActionPlanChanged, SeverityInfo, OutcomeSuccess,
		ResourceUser, u.Key.String(), CategorySubscription, nil,
		"from", from,
		"to", to,
	)
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnCreditsAdded implements plugin.OnCreditsAdded.
func (e *Extension) OnCreditsAdded(ctx context.Context, u *user.User, amount types.Money) error {
	return e.record(ctx, ActionCreditsAdded, SeverityInfo, OutcomeSuccess,
		ResourceCredits, u.Key.String(), CategoryPayment, nil,
		"amount", amount.String(),
		"balance", balance(u),
	)
}

// OnCreditsDeducted implements plugin.OnCreditsDeducted.
func (e *Extension) OnCreditsDeducted(ctx context.Context, u *user.User, amount types.Money) error {
	return e.record(ctx, ActionCreditsDeducted, SeverityInfo, OutcomeSuccess,
		ResourceCredits, u.Key.String(), CategoryBilling, nil,
		"plan", u.Plan,
		"amount", amount.String(),
		"balance", balance(u),
	)
}

// OnInvoiceGenerated implements plugin.OnInvoiceGenerated.
func (e *Extension) OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceGenerated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		invoiceMeta(inv)...,
	)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		invoiceMeta(inv)...,
	)
}

// OnInvoiceDefaulted implements plugin.OnInvoiceDefaulted.
func (e *Extension) OnInvoiceDefaulted(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceDefaulted, SeverityWarning, OutcomeFailure,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		invoiceMeta(inv)...,
	)
}

// OnBillingFailed implements plugin.OnBillingFailed.
func (e *Extension) OnBillingFailed(ctx context.Context, key user.Key, planName string, err error) error {
	return e.record(ctx, ActionBillingFailed, SeverityError, OutcomeFailure,
		ResourceUser, key.String(), CategoryBilling, err,
		"plan", planName,
	)
}

// ──────────────────────────────────────────────────
// Enforcement hooks
// ──────────────────────────────────────────────────

// OnEnforcementTransition implements plugin.OnEnforcementTransition.
func (e *Extension) OnEnforcementTransition(ctx context.Context, u *user.User, from, to user.ResourceState) error {
	severity := SeverityInfo
	if to == user.StateStopping || to == user.StateStopped {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionEnforcementTransition, severity, OutcomeSuccess,
		ResourceUser, u.Key.String(), CategoryEnforcement, nil,
		"plan", u.Plan,
		"from", string(from),
		"to", string(to),
	)
}

// OnResourcesStopped implements plugin.OnResourcesStopped.
func (e *Extension) OnResourcesStopped(ctx context.Context, u *user.User, op string) error {
	return e.record(ctx, ActionResourcesStopped, SeverityCritical, OutcomeSuccess,
		ResourceResources, u.Key.String(), CategoryEnforcement, nil,
		"plan", u.Plan,
		"operation", op,
	)
}

// OnResourcesResumed implements plugin.OnResourcesResumed.
func (e *Extension) OnResourcesResumed(ctx context.Context, u *user.User) error {
	return e.record(ctx, ActionResourcesResumed, SeverityInfo, OutcomeSuccess,
		ResourceResources, u.Key.String(), CategoryEnforcement, nil,
		"plan", u.Plan,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func balance(u *user.User) string {
	if u.Credits == nil {
		return types.Zero.String()
	}
	return u.Credits.Balance.String()
}

func invoiceMeta(inv *invoice.Invoice) []any {
	return []any{
		"user", inv.UserID + "@" + inv.ProviderID,
		"plan", inv.PlanName,
		"total", inv.Total.String(),
		"state", string(inv.State),
		"due_date", inv.DueDate,
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
