package finance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/finance/actuator"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plugin"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/usage"
	"github.com/xraph/finance/user"
)

// Operation is the kind of request a user makes against their resources.
// Only OpCreate is subject to payment checks.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Charge is the priced usage of one item in one order state.
type Charge struct {
	Item      pricing.Item
	State     string
	Units     types.Money
	UnitPrice types.Money
	Amount    types.Money
}

// Settlement is the final charge for a user's unbilled window, applied when
// it leaves a plan. Invoice is set for kinds that invoice.
type Settlement struct {
	Plan    string
	Start   time.Time
	End     time.Time
	Amount  types.Money
	Invoice *invoice.Invoice
}

// Kind is a plan implementation. One Kind value is constructed per installed
// plan and owns that plan's options, pricing table and workers.
//
// Methods receiving a *user.User are called with the user's lock held and
// may mutate it; the directory persists the result.
type Kind interface {
	// Name returns the kind name, e.g. "prepaid".
	Name() string

	// IsAuthorized decides whether u may perform op. Creation requires the
	// current period and all past debts to be paid; everything else is allowed.
	IsAuthorized(ctx context.Context, u *user.User, op Operation) (bool, error)
	// CurrentPeriodPaid reports whether the user is paid up under this plan.
	CurrentPeriodPaid(u *user.User) bool
	// PastDebtsSettled reports whether obligations from previous plans are paid.
	PastDebtsSettled(u *user.User) bool

	RegisterUser(ctx context.Context, u *user.User) error
	// UnregisterUser bills the usage since the last billing and fails with
	// ErrUnpaid when the user still owes money under this plan.
	UnregisterUser(ctx context.Context, u *user.User) (*Settlement, error)
	// ChangePlan bills the usage since the last billing under this plan and
	// moves u to next.
	ChangePlan(ctx context.Context, u *user.User, next Kind) (*Settlement, error)

	// SetOptions validates and applies options. Failures wrap ErrInvalidOption
	// and leave the previous options in effect.
	SetOptions(opts map[string]string) error
	Options() map[string]string
	Settings() Settings
	Pricing() *pricing.Policy
	// ReloadPricing re-reads the pricing file, if one is configured.
	ReloadPricing() error

	// Bill applies charges for [start, end) to u. Postpaid kinds return the
	// invoice they issued.
	Bill(u *user.User, charges []Charge, start, end time.Time) (*invoice.Invoice, error)
	// MarkOverdue moves invoices past their due date to DEFAULTING and
	// returns them.
	MarkOverdue(u *user.User, now time.Time) []*invoice.Invoice

	StartWorkers(ctx context.Context) error
	StopWorkers(ctx context.Context) error
	Running() bool
}

// Deps are the collaborators handed to a Kind when its plan is installed.
type Deps struct {
	PlanName    string
	Directory   *Directory
	Usage       usage.Source
	Actuator    actuator.Actuator
	Hooks       *plugin.Registry
	Logger      *slog.Logger
	Clock       clockwork.Clock
	Interval    time.Duration
	StopTimeout time.Duration
}

// KindConstructor builds a Kind for one plan.
type KindConstructor func(deps Deps) Kind

// FullyPaid reports whether u has paid the current period and all past debts.
func FullyPaid(k Kind, u *user.User) bool {
	return k.CurrentPeriodPaid(u) && k.PastDebtsSettled(u)
}

// Authorize implements the common authorization policy for kinds.
func Authorize(k Kind, u *user.User, op Operation) bool {
	if op != OpCreate {
		return true
	}
	return FullyPaid(k, u)
}
