package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/types"
)

func TestDeductToZeroIsPaid(t *testing.T) {
	c := &Credits{Balance: types.MustParse("10.0")}

	amount := c.Deduct(pricing.Compute(2, 4), types.MustParse("5.0"), types.MustParse("2.0"))

	assert.True(t, amount.Equal(types.NewMoney(10)))
	assert.True(t, c.Balance.IsZero())
	assert.True(t, c.HasPaid())
}

func TestDeductBelowZero(t *testing.T) {
	c := &Credits{Balance: types.NewMoney(1)}
	c.Deduct(pricing.Volume(10), types.NewMoney(1), types.NewMoney(2))

	assert.False(t, c.HasPaid())
	assert.Equal(t, "-1", c.Balance.String())

	c.Add(types.NewMoney(1))
	assert.True(t, c.HasPaid())
}

func TestPastDebtsSettled(t *testing.T) {
	now := time.Unix(1000, 0)
	key := Key{UserID: "alice", ProviderID: "p1"}

	tests := []struct {
		name              string
		setup             func(u *User)
		creditsAreCurrent bool
		want              bool
	}{
		{
			name:  "clean user",
			setup: func(*User) {},
			want:  true,
		},
		{
			name: "unpaid invoice from previous plan",
			setup: func(u *User) {
				u.Invoices = append(u.Invoices, invoice.New("alice", "p1", "old", now, now))
			},
			want: false,
		},
		{
			name: "paid invoice from previous plan",
			setup: func(u *User) {
				inv := invoice.New("alice", "p1", "old", now, now)
				inv.SetState(invoice.StatePaid, now)
				u.Invoices = append(u.Invoices, inv)
			},
			want: true,
		},
		{
			name: "unpaid invoice from current plan is not a past debt",
			setup: func(u *User) {
				u.Invoices = append(u.Invoices, invoice.New("alice", "p1", "current", now, now))
			},
			want: true,
		},
		{
			name: "negative credits left from a prepaid plan",
			setup: func(u *User) {
				u.EnsureCredits().Balance = types.NewMoney(-3)
			},
			want: false,
		},
		{
			name: "negative credits of the current prepaid plan",
			setup: func(u *User) {
				u.EnsureCredits().Balance = types.NewMoney(-3)
			},
			creditsAreCurrent: true,
			want:              true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := New(key)
			u.Plan = "current"
			tt.setup(u)
			assert.Equal(t, tt.want, u.PastDebtsSettled(tt.creditsAreCurrent))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Unix(0, 0)
	u := New(Key{UserID: "bob", ProviderID: "p1"})
	u.Plan = "basic"
	u.EnsureCredits().Balance = types.NewMoney(5)
	u.Invoices = []*invoice.Invoice{invoice.New("bob", "p1", "basic", now, now)}
	u.Properties["tier"] = "gold"

	c := u.Clone()
	c.Credits.Add(types.NewMoney(1))
	c.Invoices[0].SetState(invoice.StatePaid, now)
	c.Properties["tier"] = "silver"
	c.PreviousPlans = append(c.PreviousPlans, "x")

	assert.Equal(t, "5", u.Credits.Balance.String())
	assert.Equal(t, invoice.StateWaiting, u.Invoices[0].State)
	assert.Equal(t, "gold", u.Properties["tier"])
	assert.Empty(t, u.PreviousPlans)
}

func TestUnpaidInvoicesFiltersByPlan(t *testing.T) {
	now := time.Unix(0, 0)
	u := New(Key{UserID: "carol", ProviderID: "p1"})
	a := invoice.New("carol", "p1", "a", now, now)
	b := invoice.New("carol", "p1", "b", now, now)
	paid := invoice.New("carol", "p1", "a", now, now)
	paid.SetState(invoice.StatePaid, now)
	u.Invoices = []*invoice.Invoice{a, b, paid}

	require.Len(t, u.UnpaidInvoices(""), 2)
	unpaid := u.UnpaidInvoices("a")
	require.Len(t, unpaid, 1)
	assert.Same(t, a, unpaid[0])
	assert.Same(t, b, u.Invoice(b.ID.String()))
}

func TestKeyEncodeIsUnambiguous(t *testing.T) {
	a := Key{UserID: "a@b", ProviderID: "c"}
	b := Key{UserID: "a", ProviderID: "b@c"}

	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.Encode(), b.Encode())
	assert.Equal(t, "a%40b@c", a.Encode())
	assert.Equal(t, "alice@p1", Key{UserID: "alice", ProviderID: "p1"}.Encode())

	assert.True(t, b.Less(a))
	assert.False(t, a.Less(b))
	assert.True(t, Key{UserID: "a", ProviderID: "p1"}.Less(Key{UserID: "a", ProviderID: "p2"}))
}
