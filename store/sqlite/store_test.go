package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/plan"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/store/sqlite"
	"github.com/xraph/finance/store/storetest"
	"github.com/xraph/finance/types"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "finance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "finance.db")

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.SavePlan(ctx, &plan.Plan{Entity: types.NewEntity(), Name: "gold", Kind: "prepaid"}))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	plans, err := s.GetAllPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "prepaid", plans[0].Kind)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), "")
	assert.ErrorIs(t, err, finance.ErrConfiguration)
}
