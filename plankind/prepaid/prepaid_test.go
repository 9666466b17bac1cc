package prepaid_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plankind/prepaid"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

func newKind(t *testing.T, opts map[string]string) *prepaid.Kind {
	t.Helper()
	base := map[string]string{"billing_interval": "10", "enforcement_wait": "10", "pricing": "compute,2,4,5"}
	for k, v := range opts {
		base[k] = v
	}
	k := prepaid.New(finance.Deps{PlanName: "gold"})
	require.NoError(t, k.SetOptions(base))
	return k.(*prepaid.Kind)
}

func newUser(t *testing.T, k *prepaid.Kind) *user.User {
	t.Helper()
	u := user.New(user.Key{UserID: "alice", ProviderID: "p1"})
	u.Plan = "gold"
	require.NoError(t, k.RegisterUser(context.Background(), u))
	return u
}

func TestInitialCreditsGrantedOnce(t *testing.T) {
	k := newKind(t, map[string]string{"initial_credits": "50"})
	u := newUser(t, k)
	require.NotNil(t, u.Credits)
	assert.True(t, u.Credits.Balance.Equal(types.NewMoney(50)))

	u.Credits.Balance = types.NewMoney(3)
	require.NoError(t, k.RegisterUser(context.Background(), u))
	assert.True(t, u.Credits.Balance.Equal(types.NewMoney(3)))
}

func TestAuthorization(t *testing.T) {
	ctx := context.Background()
	k := newKind(t, nil)
	u := newUser(t, k)

	ok, err := k.IsAuthorized(ctx, u, finance.OpCreate)
	require.NoError(t, err)
	assert.True(t, ok)

	u.Credits.Balance = types.NewMoney(-1)
	ok, _ = k.IsAuthorized(ctx, u, finance.OpCreate)
	assert.False(t, ok)
	for _, op := range []finance.Operation{finance.OpRead, finance.OpUpdate, finance.OpDelete} {
		ok, _ = k.IsAuthorized(ctx, u, op)
		assert.True(t, ok, op)
	}

	// A debt from a previous postpaid plan blocks creation too.
	u.Credits.Balance = types.NewMoney(1)
	u.Invoices = append(u.Invoices, invoice.New("alice", "p1", "silver", u.CreatedAt, u.CreatedAt))
	ok, _ = k.IsAuthorized(ctx, u, finance.OpCreate)
	assert.False(t, ok)
}

func TestBillDeducts(t *testing.T) {
	k := newKind(t, nil)
	u := newUser(t, k)

	inv, err := k.Bill(u, []finance.Charge{
		{Item: pricing.Compute(2, 4), Units: types.NewMoney(3), UnitPrice: types.NewMoney(5), Amount: types.NewMoney(15)},
	}, u.CreatedAt, u.CreatedAt)
	require.NoError(t, err)
	assert.Nil(t, inv)
	assert.True(t, u.Credits.Balance.Equal(types.NewMoney(-15)))
	assert.True(t, u.Credits.LastCharged.Equal(types.NewMoney(15)))
}

func TestUnregisterRequiresNonNegativeBalance(t *testing.T) {
	k := newKind(t, nil)
	u := newUser(t, k)
	u.Credits.Balance = types.NewMoney(-2)

	_, err := k.UnregisterUser(context.Background(), u)
	require.ErrorIs(t, err, finance.ErrUnpaid)

	require.NoError(t, k.AddCredits(u, types.NewMoney(2)))
	s, err := k.UnregisterUser(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "gold", s.Plan)
	assert.True(t, s.Amount.IsZero())
}

func TestAddCreditsRejectsNonPositive(t *testing.T) {
	k := newKind(t, nil)
	u := newUser(t, k)
	assert.ErrorIs(t, k.AddCredits(u, types.Zero), finance.ErrInvalidAmount)
	assert.ErrorIs(t, k.AddCredits(u, types.NewMoney(-1)), finance.ErrInvalidAmount)
}
