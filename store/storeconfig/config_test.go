package storeconfig_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance"
	"github.com/xraph/finance/store/memory"
	"github.com/xraph/finance/store/sqlite"
	"github.com/xraph/finance/store/storeconfig"
)

func TestDetectDriver(t *testing.T) {
	tests := []struct {
		url, path string
		want      storeconfig.Driver
	}{
		{"", "", storeconfig.DriverMemory},
		{"postgres://u:p@localhost/finance", "", storeconfig.DriverPostgres},
		{"postgresql://localhost/finance", "", storeconfig.DriverPostgres},
		{"mongodb://localhost:27017", "", storeconfig.DriverMongo},
		{"mongodb+srv://cluster.example.com", "", storeconfig.DriverMongo},
		{"redis://localhost:6379/0", "", storeconfig.DriverRedis},
		{"", "/var/lib/finance.db", storeconfig.DriverSQLite},
		{"data/finance.sqlite", "", storeconfig.DriverSQLite},
		{"host=localhost dbname=finance", "", storeconfig.DriverPostgres},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, storeconfig.DetectDriver(tt.url, tt.path), "url=%q path=%q", tt.url, tt.path)
	}
}

func TestOpenMemoryAndSQLite(t *testing.T) {
	ctx := context.Background()

	s, err := storeconfig.Open(ctx, storeconfig.Config{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = storeconfig.Open(ctx, storeconfig.Config{Path: filepath.Join(t.TempDir(), "f.db")})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &sqlite.Store{}, s)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := storeconfig.Open(context.Background(), storeconfig.Config{Driver: "cassandra"})
	assert.ErrorIs(t, err, finance.ErrConfiguration)
}
