// Package storeconfig opens a store.Store backend from configuration.
package storeconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/finance"
	"github.com/xraph/finance/store"
	"github.com/xraph/finance/store/memory"
	"github.com/xraph/finance/store/mongo"
	"github.com/xraph/finance/store/postgres"
	"github.com/xraph/finance/store/redis"
	"github.com/xraph/finance/store/sqlite"
)

// Driver names a store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	DriverMongo    Driver = "mongo"
	DriverRedis    Driver = "redis"
)

// Config selects and configures a backend.
type Config struct {
	// Driver selects the backend. Empty or "auto" detects it from URL.
	Driver Driver `json:"driver" mapstructure:"driver" yaml:"driver"`

	// URL is the connection string for postgres, mongo and redis.
	URL string `json:"url" mapstructure:"url" yaml:"url"`

	// Path is the SQLite database file.
	Path string `json:"path" mapstructure:"path" yaml:"path"`

	// Database is the MongoDB database name.
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// Prefix namespaces Redis keys.
	Prefix string `json:"prefix" mapstructure:"prefix" yaml:"prefix"`

	// MaxConns caps the Postgres pool.
	MaxConns int `json:"max_conns" mapstructure:"max_conns" yaml:"max_conns"`
}

// DetectDriver infers the backend from a connection string. An empty URL
// with no path means the in-memory store.
func DetectDriver(url, path string) Driver {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return DriverMongo
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return DriverRedis
	case path != "",
		strings.HasSuffix(url, ".db"),
		strings.HasSuffix(url, ".sqlite"),
		strings.HasSuffix(url, ".sqlite3"):
		return DriverSQLite
	case url == "":
		return DriverMemory
	}
	return DriverPostgres
}

// Open creates the configured backend. The caller owns the result and must
// Close it; migration is left to finance.Engine.Start.
func Open(ctx context.Context, cfg Config) (store.Store, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL, cfg.Path)
	}

	var (
		s   store.Store
		err error
	)
	switch driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverPostgres:
		s, err = unwrap(postgres.Open(ctx, cfg.URL, cfg.MaxConns))
	case DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = cfg.URL
		}
		s, err = unwrap(sqlite.Open(ctx, path))
	case DriverMongo:
		database := cfg.Database
		if database == "" {
			database = "finance"
		}
		s, err = unwrap(mongo.Open(ctx, cfg.URL, database))
	case DriverRedis:
		s, err = unwrap(redis.Open(ctx, cfg.URL, cfg.Prefix))
	default:
		return nil, fmt.Errorf("%w: unsupported store driver %q", finance.ErrConfiguration, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("finance: open %s store: %w", driver, err)
	}
	return s, nil
}

// unwrap keeps a failed constructor from yielding a non-nil interface that
// holds a nil pointer.
func unwrap[S store.Store](s S, err error) (store.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
