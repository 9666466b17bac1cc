package postpaid_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plankind/postpaid"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

func newKind(t *testing.T) finance.Kind {
	t.Helper()
	k := postpaid.New(finance.Deps{PlanName: "silver"})
	require.NoError(t, k.SetOptions(map[string]string{
		"billing_interval": "10",
		"enforcement_wait": "10",
		"invoice_due":      "5",
		"pricing":          "compute,2,4,5;volume,10,1",
	}))
	return k
}

func newUser() *user.User {
	u := user.New(user.Key{UserID: "bob", ProviderID: "p1"})
	u.Plan = "silver"
	return u
}

func TestBillIssuesOneInvoicePerPeriod(t *testing.T) {
	k := newKind(t)
	u := newUser()
	start := time.Unix(0, 0)
	end := start.Add(10 * time.Second)

	inv, err := k.Bill(u, []finance.Charge{
		{Item: pricing.Compute(2, 4), Units: types.NewMoney(10), UnitPrice: types.NewMoney(5)},
		{Item: pricing.Volume(10), Units: types.NewMoney(10), UnitPrice: types.NewMoney(1)},
		{Item: pricing.Compute(2, 4), Units: types.NewMoney(2), UnitPrice: types.NewMoney(5)},
	}, start, end)
	require.NoError(t, err)
	require.NotNil(t, inv)

	assert.Equal(t, invoice.StateWaiting, inv.State)
	assert.Equal(t, "silver", inv.PlanName)
	assert.True(t, inv.Total.Equal(types.NewMoney(70)))
	assert.Len(t, inv.LineItems, 2)
	assert.True(t, inv.DueDate.Equal(end.Add(5*time.Second)))
	assert.Equal(t, []*invoice.Invoice{inv}, u.Invoices)
}

func TestBillWithoutChargesIssuesNothing(t *testing.T) {
	k := newKind(t)
	u := newUser()
	inv, err := k.Bill(u, nil, time.Unix(0, 0), time.Unix(10, 0))
	require.NoError(t, err)
	assert.Nil(t, inv)
	assert.Empty(t, u.Invoices)
}

func TestAuthorizationFollowsDefaultingInvoices(t *testing.T) {
	ctx := context.Background()
	k := newKind(t)
	u := newUser()
	now := time.Unix(100, 0)

	inv := invoice.New("bob", "p1", "silver", now, now)
	u.Invoices = append(u.Invoices, inv)

	ok, err := k.IsAuthorized(ctx, u, finance.OpCreate)
	require.NoError(t, err)
	assert.True(t, ok, "a waiting invoice does not block creation")

	inv.SetState(invoice.StateDefaulting, now)
	ok, _ = k.IsAuthorized(ctx, u, finance.OpCreate)
	assert.False(t, ok)
	ok, _ = k.IsAuthorized(ctx, u, finance.OpRead)
	assert.True(t, ok)

	inv.SetState(invoice.StatePaid, now)
	ok, _ = k.IsAuthorized(ctx, u, finance.OpCreate)
	assert.True(t, ok)

	// A negative balance left over from a prepaid plan is a past debt.
	u.EnsureCredits().Balance = types.NewMoney(-1)
	ok, _ = k.IsAuthorized(ctx, u, finance.OpCreate)
	assert.False(t, ok)
}

func TestUnregisterRequiresPaidInvoices(t *testing.T) {
	k := newKind(t)
	u := newUser()
	now := time.Unix(100, 0)
	inv := invoice.New("bob", "p1", "silver", now, now)
	u.Invoices = append(u.Invoices, inv)

	_, err := k.UnregisterUser(context.Background(), u)
	require.ErrorIs(t, err, finance.ErrUnpaid)

	inv.SetState(invoice.StatePaid, now)
	s, err := k.UnregisterUser(context.Background(), u)
	require.NoError(t, err)
	assert.Nil(t, s.Invoice)
}

func TestMarkOverdue(t *testing.T) {
	k := newKind(t)
	u := newUser()
	inv, err := k.Bill(u, []finance.Charge{
		{Item: pricing.Volume(10), Units: types.NewMoney(1), UnitPrice: types.NewMoney(1)},
	}, time.Unix(0, 0), time.Unix(10, 0))
	require.NoError(t, err)

	assert.Empty(t, k.MarkOverdue(u, time.Unix(14, 0)))
	got := k.MarkOverdue(u, time.Unix(15, 0))
	require.Len(t, got, 1)
	assert.Equal(t, invoice.StateDefaulting, inv.State)
	assert.Empty(t, k.MarkOverdue(u, time.Unix(20, 0)))
}
