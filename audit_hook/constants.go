package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanInstalled   = "plan.installed"
	ActionPlanUpdated     = "plan.updated"
	ActionPlanUninstalled = "plan.uninstalled"

	// User actions
	ActionUserRegistered   = "user.registered"
	ActionUserUnregistered = "user.unregistered"
	ActionUserRemoved      = "user.removed"
	ActionPlanChanged      = "user.plan_changed"

	// Credits actions
	ActionCreditsAdded    = "credits.added"
	ActionCreditsDeducted = "credits.deducted"

	// Invoice actions
	ActionInvoiceGenerated = "invoice.generated"
	ActionInvoicePaid      = "invoice.paid"
	ActionInvoiceDefaulted = "invoice.defaulted"
	ActionBillingFailed    = "billing.failed"

	// Enforcement actions
	ActionEnforcementTransition = "enforcement.transition"
	ActionResourcesStopped      = "resources.stopped"
	ActionResourcesResumed      = "resources.resumed"
)

// Resource constants for audit events.
const (
	ResourcePlan      = "plan"
	ResourceUser      = "user"
	ResourceCredits   = "credits"
	ResourceInvoice   = "invoice"
	ResourceResources = "resources"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryEnforcement  = "enforcement"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
