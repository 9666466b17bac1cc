package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/finance/store"
	"github.com/xraph/finance/store/postgres"
	"github.com/xraph/finance/store/storetest"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := postgres.Open(ctx, dbURL, 4)
	if err != nil {
		t.Skipf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	for _, table := range []string{"finance_invoices", "finance_users", "finance_plans"} {
		_, err := s.Pool().Exec(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := postgres.Open(context.Background(), "", 0)
	require.Error(t, err)
}
