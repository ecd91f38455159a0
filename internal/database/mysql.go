package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"

	"github.com/Lumos-Labs-HQ/sprout/internal/schema"
)

// mysqlMaxParams matches the server's prepared-statement placeholder limit.
const mysqlMaxParams = 65535

type MySQLAdapter struct {
	db *sql.DB
	qb squirrel.StatementBuilderType
}

func NewMySQLAdapter() *MySQLAdapter {
	return &MySQLAdapter{
		qb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

func (m *MySQLAdapter) Connect(ctx context.Context, url string) error {
	db, err := sql.Open("mysql", url)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	m.db = db
	return nil
}

func (m *MySQLAdapter) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) MaxParams() int { return mysqlMaxParams }

func (m *MySQLAdapter) InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}, returning []string) ([][]interface{}, error) {
	if err := validateIdentifiers(table, columns, returning); err != nil {
		return nil, err
	}
	// MySQL has no RETURNING; generated keys are reconstructed from
	// LAST_INSERT_ID, which only works for a single auto-increment column.
	if len(returning) > 1 {
		return nil, fmt.Errorf("mysql cannot report more than one generated column, got %d", len(returning))
	}

	quotedCols := make([]string, len(columns))
	for i, col := range columns {
		quotedCols[i] = quoteBacktick(col)
	}

	builder := m.qb.Insert(quoteBacktick(table)).Columns(quotedCols...)
	for _, row := range rows {
		builder = builder.Values(row...)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert for %s: %w", table, err)
	}

	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(returning) == 0 {
		return nil, nil
	}

	// LAST_INSERT_ID is the id of the FIRST row of a multi-row insert.
	// Assumes auto_increment_increment=1 and no concurrent writer, which
	// holds for a seeding run.
	first, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read generated keys for %s: %w", table, err)
	}
	generated := make([][]interface{}, len(rows))
	for i := range rows {
		generated[i] = []interface{}{first + int64(i)}
	}
	return generated, nil
}

func (m *MySQLAdapter) Truncate(ctx context.Context, tables []string) error {
	for _, table := range tables {
		if !schema.IsValidIdentifier(table) {
			return fmt.Errorf("invalid table name: %s", table)
		}
		query := fmt.Sprintf("TRUNCATE TABLE %s", quoteBacktick(table))
		if _, err := m.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}

func quoteBacktick(name string) string {
	return "`" + name + "`"
}
