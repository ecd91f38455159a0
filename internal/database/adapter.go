// Package database holds the per-provider persistence adapters. Each adapter
// exposes the bulk-insert operation the engine needs, plus the truncate path
// used by `sprout reset`.
package database

import (
	"context"
)

// Adapter is the persistence collaborator of the seeding engine. InsertRows
// must be atomic per call; when returning is non-empty it reports the
// database-generated values of those columns for every row, in input order.
type Adapter interface {
	Connect(ctx context.Context, url string) error
	Close() error
	Ping(ctx context.Context) error

	// MaxParams is the provider's hard ceiling on bind parameters per
	// statement; batch sizes are derived from it.
	MaxParams() int

	InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}, returning []string) ([][]interface{}, error)

	// Truncate empties the given tables. Callers pass them in reverse
	// dependency order so FK constraints hold.
	Truncate(ctx context.Context, tables []string) error
}

// New returns the adapter for a provider name. Unknown providers fall back to
// PostgreSQL, matching the config default.
func New(provider string) Adapter {
	switch provider {
	case "mysql":
		return NewMySQLAdapter()
	case "sqlite", "sqlite3":
		return NewSQLiteAdapter()
	default:
		return NewPostgresAdapter()
	}
}
