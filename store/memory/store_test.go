package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/invoice"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/store/memory"
	"github.com/xraph/finance/store/storetest"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/user"
)

func TestUsersAreCopied(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	u := user.New(user.Key{UserID: "alice", ProviderID: "p1"})
	u.Plan = "gold"
	require.NoError(t, s.SaveUser(ctx, u))

	u.Plan = "silver"
	users, err := s.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "gold", users[0].Plan)

	require.NoError(t, s.RemoveUser(ctx, u.Key))
	assert.ErrorIs(t, s.RemoveUser(ctx, u.Key), finance.ErrUserNotFound)
}

func TestPlansUpsert(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	p := &plan.Plan{Name: "gold", Kind: "prepaid", Options: map[string]string{"a": "1"}}
	require.NoError(t, s.SavePlan(ctx, p))
	p.Options["a"] = "2"
	require.NoError(t, s.SavePlan(ctx, p))

	plans, err := s.GetAllPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "2", plans[0].Options["a"])

	require.NoError(t, s.RemovePlan(ctx, "gold"))
	assert.ErrorIs(t, s.RemovePlan(ctx, "gold"), finance.ErrPlanNotFound)
}

func TestListInvoicesFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()

	var ids []string
	for i := 0; i < 3; i++ {
		inv := invoice.New("alice", "p1", "gold", now, now.Add(time.Hour))
		inv.Total = types.NewMoney(int64(i))
		if i == 1 {
			inv.SetState(invoice.StatePaid, now)
		}
		require.NoError(t, s.SaveInvoice(ctx, inv))
		ids = append(ids, inv.ID.String())
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, s.SaveInvoice(ctx, invoice.New("bob", "p1", "gold", now, now)))

	all, err := s.ListInvoices(ctx, "alice", "p1", invoice.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID.String())

	waiting, err := s.ListInvoices(ctx, "alice", "p1", invoice.ListOpts{State: invoice.StateWaiting})
	require.NoError(t, err)
	assert.Len(t, waiting, 2)

	page, err := s.ListInvoices(ctx, "alice", "p1", invoice.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID.String())

	got, err := s.GetInvoice(ctx, all[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(types.NewMoney(2)))
}

func TestPingAfterClose(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), finance.ErrStoreUnavailable)
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}
