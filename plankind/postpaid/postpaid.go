// Package postpaid implements the invoice-based plan kind: usage accrues
// into one invoice per billing period that must later be marked paid.
package postpaid

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/finance"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plankind"
	"github.com/xraph/finance/user"
)

// Name is the kind name plans use to select this kind.
const Name = "postpaid"

// Kind is the postpaid plan kind.
type Kind struct {
	*plankind.Base
}

// New constructs the postpaid kind for one plan.
func New(deps finance.Deps) finance.Kind {
	k := &Kind{Base: plankind.NewBase(Name, deps)}
	k.Bind(k)
	return k
}

// IsAuthorized allows creation only while no invoice of this plan is
// DEFAULTING and nothing is owed under previous plans.
func (k *Kind) IsAuthorized(_ context.Context, u *user.User, op finance.Operation) (bool, error) {
	return finance.Authorize(k, u, op), nil
}

// CurrentPeriodPaid reports whether no invoice of the current plan is
// DEFAULTING.
func (k *Kind) CurrentPeriodPaid(u *user.User) bool {
	for _, inv := range u.Invoices {
		if inv.PlanName == u.Plan && inv.State == invoice.StateDefaulting {
			return false
		}
	}
	return true
}

// PastDebtsSettled reports whether invoices from previous plans are paid and
// any prepaid balance left behind is not negative.
func (k *Kind) PastDebtsSettled(u *user.User) bool {
	return u.PastDebtsSettled(false)
}

// UnregisterUser refuses to let a user with unpaid invoices leave. The
// usage since the last billing is then invoiced under this plan; that final
// invoice follows the user as a past debt.
func (k *Kind) UnregisterUser(ctx context.Context, u *user.User) (*finance.Settlement, error) {
	if unpaid := u.UnpaidInvoices(u.Plan); len(unpaid) > 0 {
		return nil, fmt.Errorf("%w: %d unpaid invoices", finance.ErrUnpaid, len(unpaid))
	}
	return k.Settle(ctx, u)
}

// ChangePlan leaves this plan and joins next.
func (k *Kind) ChangePlan(ctx context.Context, u *user.User, next finance.Kind) (*finance.Settlement, error) {
	s, err := k.UnregisterUser(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := next.RegisterUser(ctx, u); err != nil {
		return nil, err
	}
	return s, nil
}

// Bill issues one WAITING invoice for [start, end) holding every charge,
// due invoice_due after the end of the period. No invoice is issued when
// there is nothing to charge.
func (k *Kind) Bill(u *user.User, charges []finance.Charge, start, end time.Time) (*invoice.Invoice, error) {
	if len(charges) == 0 {
		return nil, nil //nolint:nilnil // nothing to invoice
	}

	inv := invoice.New(u.UserID, u.ProviderID, u.Plan, start, end)
	for _, c := range charges {
		inv.AddCharge(c.Item, c.State, c.Units, c.UnitPrice)
	}
	inv.DueDate = end.Add(k.Settings().InvoiceDue)

	u.Invoices = append(u.Invoices, inv)
	return inv, nil
}

var _ finance.Kind = (*Kind)(nil)
