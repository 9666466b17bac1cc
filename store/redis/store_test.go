package redis_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/id"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/store/redis"
	"github.com/xraph/finance/store/storetest"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping integration test")
	}

	ctx := context.Background()
	// A unique prefix per test keeps runs independent.
	prefix := "finance_test:" + id.NewEventID().String()
	s, err := redis.Open(ctx, url, prefix)
	if err != nil {
		t.Skipf("Failed to connect to test redis: %v", err)
	}
	t.Cleanup(func() {
		iter := s.Client().Scan(context.Background(), 0, prefix+":*", 0).Iterator()
		for iter.Next(context.Background()) {
			_ = s.Client().Del(context.Background(), iter.Val()).Err()
		}
		_ = s.Close()
	})
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := redis.Open(context.Background(), "not a url", "")
	assert.ErrorIs(t, err, finance.ErrConfiguration)
	require.Error(t, err)
}
