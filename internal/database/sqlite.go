package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Lumos-Labs-HQ/sprout/internal/schema"
)

// sqliteMaxParams is the default SQLITE_MAX_VARIABLE_NUMBER of older builds;
// staying under it keeps inserts portable.
const sqliteMaxParams = 999

type SQLiteAdapter struct {
	db *sql.DB
}

func NewSQLiteAdapter() *SQLiteAdapter {
	return &SQLiteAdapter{}
}

func (s *SQLiteAdapter) Connect(ctx context.Context, url string) error {
	path := strings.TrimPrefix(url, "sqlite://")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	s.db = db
	return nil
}

func (s *SQLiteAdapter) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteAdapter) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteAdapter) MaxParams() int { return sqliteMaxParams }

func (s *SQLiteAdapter) InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}, returning []string) ([][]interface{}, error) {
	if err := validateIdentifiers(table, columns, returning); err != nil {
		return nil, err
	}
	if len(returning) > 1 {
		return nil, fmt.Errorf("sqlite cannot report more than one generated column, got %d", len(returning))
	}

	quotedCols := make([]string, len(columns))
	for i, col := range columns {
		quotedCols[i] = quoteDouble(col)
	}

	builder := squirrel.Insert(quoteDouble(table)).Columns(quotedCols...)
	for _, row := range rows {
		builder = builder.Values(row...)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert for %s: %w", table, err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(returning) == 0 {
		return nil, nil
	}

	// last_insert_rowid() is the id of the LAST inserted row.
	last, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read generated keys for %s: %w", table, err)
	}
	first := last - int64(len(rows)) + 1
	generated := make([][]interface{}, len(rows))
	for i := range rows {
		generated[i] = []interface{}{first + int64(i)}
	}
	return generated, nil
}

func (s *SQLiteAdapter) Truncate(ctx context.Context, tables []string) error {
	for _, table := range tables {
		if !schema.IsValidIdentifier(table) {
			return fmt.Errorf("invalid table name: %s", table)
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", quoteDouble(table))); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
		// Reset the autoincrement counter; the table may not be in
		// sqlite_sequence, so the error is ignored on purpose.
		s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", table)
	}
	return nil
}

func quoteDouble(name string) string {
	return `"` + name + `"`
}
