// Package storetest holds the behavior every store.Store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/id"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

// Factory returns an empty, migrated store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("UserRoundTrip", func(t *testing.T) { testUserRoundTrip(t, newStore(t)) })
	t.Run("UserUpsert", func(t *testing.T) { testUserUpsert(t, newStore(t)) })
	t.Run("RemoveUserDropsInvoices", func(t *testing.T) { testRemoveUser(t, newStore(t)) })
	t.Run("PlanUpsert", func(t *testing.T) { testPlanUpsert(t, newStore(t)) })
	t.Run("InvoiceListing", func(t *testing.T) { testInvoiceListing(t, newStore(t)) })
	t.Run("KeysContainingSeparator", func(t *testing.T) { testKeysContainingSeparator(t, newStore(t)) })
	t.Run("InvoiceNotFound", func(t *testing.T) { testInvoiceNotFound(t, newStore(t)) })
	t.Run("MigrateIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Migrate(context.Background()))
		require.NoError(t, s.Ping(context.Background()))
	})
}

func sampleUser(userID string) *user.User {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	u := user.New(user.Key{UserID: userID, ProviderID: "p1"})
	u.Plan = "gold"
	u.PreviousPlans = []string{"bronze"}
	u.State = user.StateWaitingForStop
	u.WaitStart = now
	u.LastBillingTime = now.Add(-time.Hour)
	u.EnsureCredits().Balance = types.MustParse("-2.5")
	u.Properties["email"] = userID + "@example.com"

	inv := invoice.New(userID, "p1", "bronze", now.Add(-2*time.Hour), now.Add(-time.Hour))
	inv.AddCharge(pricing.Compute(2, 4), "RUNNING", types.NewMoney(3), types.MustParse("0.5"))
	u.Invoices = append(u.Invoices, inv)
	return u
}

// testKeysContainingSeparator stores two users whose parts only differ in
// where the '@' falls.
func testKeysContainingSeparator(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := user.New(user.Key{UserID: "a@b", ProviderID: "c"})
	first.Plan = "gold"
	second := user.New(user.Key{UserID: "a", ProviderID: "b@c"})
	second.Plan = "silver"
	require.Equal(t, first.Key.String(), second.Key.String())
	require.NotEqual(t, first.Key.Encode(), second.Key.Encode())

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, u := range []*user.User{first, second} {
		require.NoError(t, s.SaveUser(ctx, u))
		require.NoError(t, s.SaveInvoice(ctx, invoice.New(u.UserID, u.ProviderID, u.Plan, now, now)))
	}

	users, err := s.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, second.Key, users[0].Key)
	assert.Equal(t, "silver", users[0].Plan)
	assert.Equal(t, first.Key, users[1].Key)
	assert.Equal(t, "gold", users[1].Plan)

	list, err := s.ListInvoices(ctx, "a@b", "c", invoice.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "gold", list[0].PlanName)

	require.NoError(t, s.RemoveUser(ctx, first.Key))
	users, err = s.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, second.Key, users[0].Key)

	list, err = s.ListInvoices(ctx, "a", "b@c", invoice.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "silver", list[0].PlanName)
}

func testUserRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := sampleUser("alice")
	require.NoError(t, s.SaveUser(ctx, u))

	users, err := s.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	got := users[0]
	assert.Equal(t, u.Key, got.Key)
	assert.Equal(t, "gold", got.Plan)
	assert.Equal(t, []string{"bronze"}, got.PreviousPlans)
	assert.Equal(t, user.StateWaitingForStop, got.State)
	assert.True(t, u.WaitStart.Equal(got.WaitStart))
	assert.True(t, u.LastBillingTime.Equal(got.LastBillingTime))
	require.NotNil(t, got.Credits)
	assert.Equal(t, "-2.5", got.Credits.Balance.String())
	assert.Equal(t, "alice@example.com", got.Properties["email"])
	require.Len(t, got.Invoices, 1)
	assert.Equal(t, u.Invoices[0].ID.String(), got.Invoices[0].ID.String())
	assert.Equal(t, "1.5", got.Invoices[0].Total.String())
}

func testUserUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := sampleUser("alice")
	require.NoError(t, s.SaveUser(ctx, u))
	require.NoError(t, s.SaveUser(ctx, sampleUser("bob")))

	u.Plan = ""
	u.State = user.StateDefault
	require.NoError(t, s.SaveUser(ctx, u))

	users, err := s.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	byKey := make(map[user.Key]*user.User)
	for _, got := range users {
		byKey[got.Key] = got
	}
	assert.Empty(t, byKey[u.Key].Plan)
	assert.Equal(t, user.StateDefault, byKey[u.Key].State)
	assert.Equal(t, "gold", byKey[user.Key{UserID: "bob", ProviderID: "p1"}].Plan)
}

func testRemoveUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := sampleUser("alice")
	require.NoError(t, s.SaveUser(ctx, u))
	require.NoError(t, s.SaveInvoice(ctx, u.Invoices[0]))

	require.NoError(t, s.RemoveUser(ctx, u.Key))
	assert.ErrorIs(t, s.RemoveUser(ctx, u.Key), finance.ErrUserNotFound)

	users, err := s.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = s.GetInvoice(ctx, u.Invoices[0].ID)
	assert.ErrorIs(t, err, finance.ErrInvoiceNotFound)
}

func testPlanUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := &plan.Plan{
		Entity:  types.NewEntity(),
		Name:    "gold",
		Kind:    "prepaid",
		Options: map[string]string{plan.OptBillingInterval: "1m"},
	}
	require.NoError(t, s.SavePlan(ctx, p))

	p.Options[plan.OptBillingInterval] = "5m"
	p.Running = true
	require.NoError(t, s.SavePlan(ctx, p))
	require.NoError(t, s.SavePlan(ctx, &plan.Plan{Entity: types.NewEntity(), Name: "bronze", Kind: "postpaid"}))

	plans, err := s.GetAllPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "bronze", plans[0].Name)
	assert.Equal(t, "gold", plans[1].Name)
	assert.Equal(t, "5m", plans[1].Options[plan.OptBillingInterval])
	assert.True(t, plans[1].Running)

	require.NoError(t, s.RemovePlan(ctx, "gold"))
	assert.ErrorIs(t, s.RemovePlan(ctx, "gold"), finance.ErrPlanNotFound)
}

func testInvoiceListing(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	var ids []id.InvoiceID
	for i := 0; i < 3; i++ {
		inv := invoice.New("alice", "p1", "gold", now, now.Add(time.Hour))
		inv.Total = types.NewMoney(int64(i))
		inv.DueDate = now.Add(24 * time.Hour)
		if i == 1 {
			inv.SetState(invoice.StatePaid, now)
		}
		require.NoError(t, s.SaveInvoice(ctx, inv))
		ids = append(ids, inv.ID)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, s.SaveInvoice(ctx, invoice.New("bob", "p1", "gold", now, now)))

	all, err := s.ListInvoices(ctx, "alice", "p1", invoice.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2].String(), all[0].ID.String())

	waiting, err := s.ListInvoices(ctx, "alice", "p1", invoice.ListOpts{State: invoice.StateWaiting})
	require.NoError(t, err)
	assert.Len(t, waiting, 2)

	page, err := s.ListInvoices(ctx, "alice", "p1", invoice.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1].String(), page[0].ID.String())

	got, err := s.GetInvoice(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, invoice.StatePaid, got.State)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(now))
	assert.True(t, got.DueDate.Equal(now.Add(24*time.Hour)))
	assert.True(t, got.Total.Equal(types.NewMoney(1)))
}

func testInvoiceNotFound(t *testing.T, s store.Store) {
	_, err := s.GetInvoice(context.Background(), id.NewInvoiceID())
	assert.ErrorIs(t, err, finance.ErrInvoiceNotFound)
}
