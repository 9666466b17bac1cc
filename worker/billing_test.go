package worker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plankind/postpaid"
	"github.com/xraph/finance/plankind/prepaid"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/usage"
	"github.com/xraph/finance/worker"
)

func TestBillingChargesOnceIntervalElapsed(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), epoch)
	alice := f.register(t, "alice")
	f.source.set("alice", compute(epoch, time.Time{}))

	f.clock.Advance(31 * time.Second)
	res := worker.NewBilling(f.deps, f.kind).RunOnce(f.ctx)

	assert.Equal(t, worker.Result{Processed: 1, Changed: 1}, res)

	u := f.user(t, alice)
	assert.True(t, u.LastBillingTime.Equal(at(31)))
	require.NotNil(t, u.Credits)
	assert.True(t, u.Credits.Balance.Equal(types.NewMoney(-155)), "balance %s", u.Credits.Balance)
	require.Len(t, f.hooks.deducted, 1)
	assert.True(t, f.hooks.deducted[0].Equal(types.NewMoney(155)))
}

func TestBillingWaitsForInterval(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), epoch)
	alice := f.register(t, "alice")
	f.source.set("alice", compute(epoch, time.Time{}))

	f.clock.Advance(10 * time.Second)
	res := worker.NewBilling(f.deps, f.kind).RunOnce(f.ctx)

	assert.Equal(t, 0, res.Changed)
	assert.Equal(t, 0, f.source.callCount())
	u := f.user(t, alice)
	assert.True(t, u.LastBillingTime.Equal(epoch))
	assert.True(t, u.Credits.Balance.IsZero())
}

func TestBillingIsIdempotentWithinInterval(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), epoch)
	alice := f.register(t, "alice")
	f.source.set("alice", compute(epoch, time.Time{}))
	b := worker.NewBilling(f.deps, f.kind)

	f.clock.Advance(31 * time.Second)
	billed, err := b.BillUser(f.ctx, alice)
	require.NoError(t, err)
	require.True(t, billed)

	billed, err = b.BillUser(f.ctx, alice)
	require.NoError(t, err)
	assert.False(t, billed)

	assert.True(t, f.user(t, alice).Credits.Balance.Equal(types.NewMoney(-155)))
}

func TestBillingFailureIsolatedPerUser(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), epoch)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	f.source.failFor("alice", errSourceDown)
	f.source.set("bob", compute(epoch, time.Time{}))

	f.clock.Advance(40 * time.Second)
	res := worker.NewBilling(f.deps, f.kind).RunOnce(f.ctx)

	assert.Equal(t, worker.Result{Processed: 2, Changed: 1, Failed: 1}, res)
	assert.True(t, f.user(t, alice).LastBillingTime.Equal(epoch))
	assert.True(t, f.user(t, bob).LastBillingTime.Equal(at(40)))
	assert.Equal(t, []string{"alice"}, keysOf(f.hooks))
}

func TestBillingRefusesUnpricedUsage(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), epoch)
	alice := f.register(t, "alice")
	f.source.set("alice",
		compute(epoch, time.Time{}),
		usage.Record{Item: pricing.Volume(7), Start: epoch},
	)

	f.clock.Advance(31 * time.Second)
	billed, err := worker.NewBilling(f.deps, f.kind).BillUser(f.ctx, alice)

	assert.False(t, billed)
	assert.ErrorIs(t, err, finance.ErrPricingIncomplete)
	u := f.user(t, alice)
	assert.True(t, u.LastBillingTime.Equal(epoch))
	assert.True(t, u.Credits.Balance.IsZero())
}

func TestBillingPricesOrderStates(t *testing.T) {
	opts := baseOptions()
	opts["pricing"] = "compute,2,4,5.0;compute,PENDING,2,4,1.0"
	f := newFixture(t, prepaid.Name, opts, epoch)
	alice := f.register(t, "alice")
	f.source.set("alice", usage.Record{
		Item:  pricing.Compute(2, 4),
		Start: epoch,
		States: []usage.StateInterval{
			{State: "PENDING", Start: epoch, End: at(10)},
			{State: "FULFILLED", Start: at(10), End: at(30)},
		},
	})

	f.clock.Advance(30 * time.Second)
	_, err := worker.NewBilling(f.deps, f.kind).BillUser(f.ctx, alice)
	require.NoError(t, err)

	// 10s at 1.0 while pending, 20s at the stateless 5.0.
	assert.True(t, f.user(t, alice).Credits.Balance.Equal(types.NewMoney(-110)))
}

func TestPostpaidBillingIssuesInvoice(t *testing.T) {
	opts := baseOptions()
	opts["invoice_due"] = "60"
	f := newFixture(t, postpaid.Name, opts, epoch)
	alice := f.register(t, "alice")
	f.source.set("alice", compute(epoch, at(20)))
	b := worker.NewBilling(f.deps, f.kind)

	f.clock.Advance(30 * time.Second)
	billed, err := b.BillUser(f.ctx, alice)
	require.NoError(t, err)
	require.True(t, billed)

	u := f.user(t, alice)
	require.Len(t, u.Invoices, 1)
	inv := u.Invoices[0]
	assert.Equal(t, invoice.StateWaiting, inv.State)
	assert.True(t, inv.Total.Equal(types.NewMoney(100)))
	assert.True(t, inv.DueDate.Equal(at(90)))
	assert.Nil(t, u.Credits)
	assert.Equal(t, 1, f.hooks.generated)

	stored, err := f.store.GetInvoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(inv.Total))

	f.clock.Advance(60 * time.Second)
	_, err = b.BillUser(f.ctx, alice)
	require.NoError(t, err)

	u = f.user(t, alice)
	assert.Equal(t, invoice.StateDefaulting, u.Invoices[0].State)
	assert.Equal(t, 1, f.hooks.defaulted)
	// No usage in the second period, so no second invoice.
	assert.Len(t, u.Invoices, 1)
}

func TestBillingSkipsOtherPlans(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), epoch)
	alice := f.register(t, "alice")
	f.source.set("alice", compute(epoch, time.Time{}))

	deps := f.deps
	deps.PlanName = "silver"
	f.clock.Advance(31 * time.Second)
	billed, err := worker.NewBilling(deps, f.kind).BillUser(f.ctx, alice)

	require.NoError(t, err)
	assert.False(t, billed)
	assert.True(t, f.user(t, alice).Credits.Balance.IsZero())
}

func TestPrice(t *testing.T) {
	policy, err := pricing.ParseInline("compute,2,4,2.5;volume,10,1.0")
	require.NoError(t, err)

	charges, err := worker.Price(policy, []usage.Record{
		{Item: pricing.Compute(2, 4), Start: at(-10), End: at(4)},
		{Item: pricing.Volume(10), Start: at(2)},
		{Item: pricing.Volume(10), Start: at(20), End: at(30)},
	}, epoch, at(10), time.Second)
	require.NoError(t, err)

	require.Len(t, charges, 2)
	assert.True(t, charges[0].Amount.Equal(types.NewMoney(10)))
	assert.True(t, charges[1].Amount.Equal(types.NewMoney(8)))
	assert.True(t, worker.Total(charges).Equal(types.NewMoney(18)))
}

func keysOf(h *hookRecorder) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.failed))
	for i, k := range h.failed {
		out[i] = k.UserID
	}
	return out
}

func TestSettleIgnoresInterval(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), epoch)
	alice := f.register(t, "alice")
	f.source.set("alice", compute(epoch, time.Time{}))
	b := worker.NewBilling(f.deps, f.kind)

	f.clock.Advance(12 * time.Second)
	u := f.user(t, alice)
	s, err := b.Settle(f.ctx, u)
	require.NoError(t, err)

	assert.Equal(t, "gold", s.Plan)
	assert.True(t, s.Amount.Equal(types.NewMoney(60)), "amount %s", s.Amount)
	assert.True(t, u.Credits.Balance.Equal(types.NewMoney(-60)))
	assert.True(t, u.LastBillingTime.Equal(at(12)))

	// Nothing is left to settle at the same instant.
	s, err = b.Settle(f.ctx, u)
	require.NoError(t, err)
	assert.True(t, s.Amount.IsZero())
	assert.True(t, u.Credits.Balance.Equal(types.NewMoney(-60)))
}

func TestSettleFailsWithoutTouchingUser(t *testing.T) {
	f := newFixture(t, prepaid.Name, baseOptions(), epoch)
	alice := f.register(t, "alice")
	f.source.failFor("alice", errSourceDown)

	f.clock.Advance(12 * time.Second)
	u := f.user(t, alice)
	_, err := worker.NewBilling(f.deps, f.kind).Settle(f.ctx, u)

	require.ErrorIs(t, err, finance.ErrInternal)
	assert.True(t, u.LastBillingTime.Equal(epoch))
	assert.True(t, u.Credits.Balance.IsZero())
}
