// Package prepaid implements the balance-based plan kind: usage is deducted
// from a credits balance that may go negative.
package prepaid

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/finance"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plankind"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// Name is the kind name plans use to select this kind.
const Name = "prepaid"

// Kind is the prepaid plan kind.
type Kind struct {
	*plankind.Base
}

// New constructs the prepaid kind for one plan.
func New(deps finance.Deps) finance.Kind {
	k := &Kind{Base: plankind.NewBase(Name, deps)}
	k.Bind(k)
	return k
}

// IsAuthorized allows creation only while the balance is non-negative and
// nothing is owed under previous plans.
func (k *Kind) IsAuthorized(_ context.Context, u *user.User, op finance.Operation) (bool, error) {
	return finance.Authorize(k, u, op), nil
}

// CurrentPeriodPaid reports whether the balance is non-negative.
func (k *Kind) CurrentPeriodPaid(u *user.User) bool {
	return u.Credits == nil || u.Credits.HasPaid()
}

// PastDebtsSettled reports whether every invoice from a previous plan is paid.
func (k *Kind) PastDebtsSettled(u *user.User) bool {
	return u.PastDebtsSettled(true)
}

// RegisterUser opens the credits ledger, crediting initial_credits the first
// time the user gets one.
func (k *Kind) RegisterUser(ctx context.Context, u *user.User) error {
	if err := k.Base.RegisterUser(ctx, u); err != nil {
		return err
	}
	if u.Credits == nil {
		credits := u.EnsureCredits()
		if initial := k.Settings().InitialCredits; initial.IsPositive() {
			credits.Add(initial)
		}
	}
	return nil
}

// UnregisterUser settles the unbilled window and refuses to let a user whose
// balance is then negative leave.
func (k *Kind) UnregisterUser(ctx context.Context, u *user.User) (*finance.Settlement, error) {
	s, err := k.Settle(ctx, u)
	if err != nil {
		return nil, err
	}
	if !k.CurrentPeriodPaid(u) {
		return nil, fmt.Errorf("%w: balance %s", finance.ErrUnpaid, u.Credits.Balance)
	}
	return s, nil
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

// Bill deducts every charge from the balance. Prepaid plans never issue
// invoices.
func (k *Kind) Bill(u *user.User, charges []finance.Charge, _, _ time.Time) (*invoice.Invoice, error) {
	credits := u.EnsureCredits()
	for _, c := range charges {
		credits.Deduct(c.Item, c.UnitPrice, c.Units)
	}
	return nil, nil //nolint:nilnil // no invoice for prepaid billing
}

// AddCredits tops up the user's balance.
func (k *Kind) AddCredits(u *user.User, amount types.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", finance.ErrInvalidAmount, amount)
	}
	u.EnsureCredits().Add(amount)
	return nil
}

var _ finance.Kind = (*Kind)(nil)
