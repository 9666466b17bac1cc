package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/usage"
)

func TestUsageRecords(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usage", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("user_id"))
		assert.Equal(t, "p1", r.URL.Query().Get("provider_id"))
		assert.Equal(t, start.Format(time.RFC3339Nano), r.URL.Query().Get("start"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response{Records: []usage.Record{
			{Item: pricing.Compute(2, 4), Start: start, End: end},
		}})
	}))
	defer srv.Close()

	src := New(Config{BaseURL: srv.URL, Token: "secret", Timeout: time.Second})
	records, err := src.UsageRecords(context.Background(), "alice", "p1", start, end)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, pricing.Compute(2, 4), records[0].Item)
	assert.True(t, records[0].End.Equal(end))
}

func TestUsageRecordsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := New(Config{BaseURL: srv.URL})
	_, err := src.UsageRecords(context.Background(), "alice", "p1", time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
