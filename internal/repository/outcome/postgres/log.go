// Package postgres reads and appends outcome records in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	_ "github.com/lib/pq" // postgres driver

	"github.com/kailas-cloud/aim3/internal/db"
	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/outcome"
)

// DefaultTable holds outcome rows when no table is configured.
const DefaultTable = "aim3_outcomes"

// Log is a table-backed outcome log.
type Log struct {
	db    *sql.DB
	table string
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn, table string) (*Log, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close() //nolint:errcheck,gosec // ping error wins
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(conn, table)
}

// New wraps an existing connection pool.
func New(conn *sql.DB, table string) (*Log, error) {
	if table == "" {
		table = DefaultTable
	}
	if !db.IsValidIdentifier(table) {
		return nil, domain.NewInvalidInput("outcomes.table", "contains invalid characters")
	}
	return &Log{db: conn, table: table}, nil
}

// Close releases the pool.
func (l *Log) Close() error { return l.db.Close() }

// Ping checks connectivity.
func (l *Log) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

// EnsureSchema creates the table if it is missing.
func (l *Log) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          BIGSERIAL PRIMARY KEY,
			gain        DOUBLE PRECISION NOT NULL DEFAULT 0,
			trust_gain  DOUBLE PRECISION NOT NULL DEFAULT 0,
			cost        DOUBLE PRECISION,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, l.table)
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", l.table, err)
	}
	return nil
}

// Append inserts one record.
func (l *Log) Append(ctx context.Context, r outcome.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (gain, trust_gain, cost, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, l.table)

	var cost sql.NullFloat64
	if r.Cost != nil {
		cost = sql.NullFloat64{Float64: *r.Cost, Valid: true}
	}
	if _, err := l.db.ExecContext(ctx, query, r.Gain, r.TrustGain, cost, r.Timestamp); err != nil {
		return fmt.Errorf("%w: insert outcome: %w", domain.ErrOutcomeSourceUnavailable, err)
	}
	return nil
}

// Recent returns up to n newest records, oldest first.
func (l *Log) Recent(ctx context.Context, n int) ([]outcome.Record, error) {
	if n <= 0 {
		return []outcome.Record{}, nil
	}
	query := fmt.Sprintf(`
		SELECT gain, trust_gain, cost, recorded_at
		FROM %s
		ORDER BY id DESC
		LIMIT $1
	`, l.table)

	rows, err := l.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("%w: query outcomes: %w", domain.ErrOutcomeSourceUnavailable, err)
	}
	defer rows.Close()

	out := make([]outcome.Record, 0, n)
	for rows.Next() {
		var (
			r    outcome.Record
			cost sql.NullFloat64
		)
		if err := rows.Scan(&r.Gain, &r.TrustGain, &cost, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan outcome: %w", domain.ErrOutcomeSourceUnavailable, err)
		}
		if cost.Valid {
			c := cost.Float64
			r.Cost = &c
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate outcomes: %w", domain.ErrOutcomeSourceUnavailable, err)
	}

	slices.Reverse(out)
	return out, nil
}
