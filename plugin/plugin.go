// Package plugin provides an extensible plugin system for the finance engine.
// Plugins can hook into plan, user, billing and enforcement lifecycle events.
//
// Hooks run after the change they describe has been persisted. A failing or
// slow hook is logged and never rolls back the change.
package plugin

import (
	"context"

	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called once the engine has started. engine is the *finance.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan hooks
// ──────────────────────────────────────────────────

// OnPlanInstalled is called when a plan is installed.
type OnPlanInstalled interface {
	Plugin
	OnPlanInstalled(ctx context.Context, p *plan.Plan) error
}

// OnPlanUninstalled is called when a plan is uninstalled.
type OnPlanUninstalled interface {
	Plugin
	OnPlanUninstalled(ctx context.Context, name string) error
}

// OnPlanUpdated is called when a plan's options change.
type OnPlanUpdated interface {
	Plugin
	OnPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) error
}

// ──────────────────────────────────────────────────
// User hooks
// ──────────────────────────────────────────────────

// OnUserRegistered is called when a user subscribes to a plan.
type OnUserRegistered interface {
	Plugin
	OnUserRegistered(ctx context.Context, u *user.User) error
}

// OnUserUnregistered is called when a user leaves planName.
type OnUserUnregistered interface {
	Plugin
	OnUserUnregistered(ctx context.Context, u *user.User, planName string) error
}

// OnUserRemoved is called when a user is deleted.
type OnUserRemoved interface {
	Plugin
	OnUserRemoved(ctx context.Context, key user.Key) error
}

// OnPlanChanged is called when a user moves between plans.
type OnPlanChanged interface {
	Plugin
	OnPlanChanged(ctx context.Context, u *user.User, from, to string) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnCreditsDeducted is called after a prepaid billing run charged a user.
type OnCreditsDeducted interface {
	Plugin
	OnCreditsDeducted(ctx context.Context, u *user.User, amount types.Money) error
}

// OnCreditsAdded is called after a prepaid user was topped up.
type OnCreditsAdded interface {
	Plugin
	OnCreditsAdded(ctx context.Context, u *user.User, amount types.Money) error
}

// OnInvoiceGenerated is called when a postpaid billing run issued an invoice.
type OnInvoiceGenerated interface {
	Plugin
	OnInvoiceGenerated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoicePaid is called when an invoice is marked PAID.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceDefaulted is called when an invoice becomes DEFAULTING.
type OnInvoiceDefaulted interface {
	Plugin
	OnInvoiceDefaulted(ctx context.Context, inv *invoice.Invoice) error
}

// OnBillingFailed is called when billing a single user failed. The user
// keeps its previous billing time and is retried on the next run.
type OnBillingFailed interface {
	Plugin
	OnBillingFailed(ctx context.Context, key user.Key, planName string, err error) error
}

// ──────────────────────────────────────────────────
// Enforcement hooks
// ──────────────────────────────────────────────────

// OnResourcesStopped is called after a user's resources were paused,
// hibernated or stopped. op names the actuator operation used.
type OnResourcesStopped interface {
	Plugin
	OnResourcesStopped(ctx context.Context, u *user.User, op string) error
}

// OnResourcesResumed is called after a user's resources were resumed.
type OnResourcesResumed interface {
	Plugin
	OnResourcesResumed(ctx context.Context, u *user.User) error
}

// OnEnforcementTransition is called on every enforcement state change.
type OnEnforcementTransition interface {
	Plugin
	OnEnforcementTransition(ctx context.Context, u *user.User, from, to user.ResourceState) error
}
