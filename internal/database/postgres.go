package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/Lumos-Labs-HQ/sprout/internal/schema"
)

// pgMaxParams is PostgreSQL's hard limit on bind parameters per statement
// (the parameter index is an int16 on the wire).
const pgMaxParams = 65535

type PostgresAdapter struct {
	pool *pgxpool.Pool
	qb   squirrel.StatementBuilderType
}

func NewPostgresAdapter() *PostgresAdapter {
	return &PostgresAdapter{
		qb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (p *PostgresAdapter) Connect(ctx context.Context, url string) error {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	p.pool = pool
	return nil
}

func (p *PostgresAdapter) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *PostgresAdapter) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresAdapter) MaxParams() int { return pgMaxParams }

func (p *PostgresAdapter) InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}, returning []string) ([][]interface{}, error) {
	query, args, err := p.buildInsert(table, columns, rows, returning)
	if err != nil {
		return nil, err
	}

	if len(returning) == 0 {
		_, err := p.pool.Exec(ctx, query, args...)
		return nil, err
	}

	result, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	generated := make([][]interface{}, 0, len(rows))
	for result.Next() {
		vals, err := result.Values()
		if err != nil {
			return nil, err
		}
		generated = append(generated, vals)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if len(generated) != len(rows) {
		return nil, fmt.Errorf("insert into %s returned %d rows, expected %d", table, len(generated), len(rows))
	}
	return generated, nil
}

func (p *PostgresAdapter) buildInsert(table string, columns []string, rows [][]interface{}, returning []string) (string, []interface{}, error) {
	if err := validateIdentifiers(table, columns, returning); err != nil {
		return "", nil, err
	}

	quotedCols := make([]string, len(columns))
	for i, col := range columns {
		quotedCols[i] = pq.QuoteIdentifier(col)
	}

	builder := p.qb.Insert(pq.QuoteIdentifier(table)).Columns(quotedCols...)
	for _, row := range rows {
		builder = builder.Values(row...)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build insert for %s: %w", table, err)
	}

	if len(returning) > 0 {
		quoted := make([]string, len(returning))
		for i, col := range returning {
			quoted[i] = pq.QuoteIdentifier(col)
		}
		query += " RETURNING " + strings.Join(quoted, ", ")
	}
	return query, args, nil
}

func (p *PostgresAdapter) Truncate(ctx context.Context, tables []string) error {
	for _, table := range tables {
		if !schema.IsValidIdentifier(table) {
			return fmt.Errorf("invalid table name: %s", table)
		}
		query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", pq.QuoteIdentifier(table))
		if _, err := p.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}

func validateIdentifiers(table string, columns, returning []string) error {
	if !schema.IsValidIdentifier(table) {
		return fmt.Errorf("invalid table name: %s", table)
	}
	for _, col := range columns {
		if !schema.IsValidIdentifier(col) {
			return fmt.Errorf("invalid column name: %s", col)
		}
	}
	for _, col := range returning {
		if !schema.IsValidIdentifier(col) {
			return fmt.Errorf("invalid column name: %s", col)
		}
	}
	return nil
}
