package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlCommands is the command-history schema. Idempotent, run on every start.
const ddlCommands = `
CREATE TABLE IF NOT EXISTS commands (
    id          BIGSERIAL    PRIMARY KEY,
    text        TEXT         NOT NULL,
    engine      TEXT         NOT NULL DEFAULT '',
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
    intent      TEXT         NOT NULL DEFAULT '',
    recorded_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_commands_recorded_at
    ON commands (recorded_at);
`

// PostgresStore is a Postgres-backed Store sharing one [pgxpool.Pool]. All
// operations are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database at dsn, verifies the connection
// and runs [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate ensures the command-history schema exists. Idempotent and safe to
// call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlCommands); err != nil {
		return fmt.Errorf("history migrate: %w", err)
	}
	return nil
}

// Record appends one entry.
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO commands (text, engine, confidence, intent, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.Text, e.Engine, e.Confidence, e.Intent, e.At,
	)
	if err != nil {
		return fmt.Errorf("history store: record: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *PostgresStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT text, engine, confidence, intent, recorded_at
		 FROM commands ORDER BY recorded_at DESC, id DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Text, &e.Engine, &e.Confidence, &e.Intent, &e.At); err != nil {
			return nil, fmt.Errorf("history store: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history store: rows: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
