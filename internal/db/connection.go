package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is the subset of *pgxpool.Pool the journal uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DB wraps the database connection pool
type DB struct {
	pool  *pgxpool.Pool
	conn  dbtx
	clock func() time.Time
}

// New creates a new database connection
func New(ctx context.Context, connString string) (*DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 4
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, conn: pool, clock: time.Now}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS ingestions (
	id              BIGSERIAL PRIMARY KEY,
	document_id     UUID        NOT NULL,
	name            TEXT        NOT NULL,
	file_hash       TEXT        NOT NULL,
	pages           INTEGER     NOT NULL,
	chunks          INTEGER     NOT NULL,
	embedding_model TEXT        NOT NULL,
	state           TEXT        NOT NULL,
	error_kind      TEXT        NOT NULL DEFAULT '',
	duration_ms     BIGINT      NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ingestions_file_hash_idx ON ingestions (file_hash);
CREATE INDEX IF NOT EXISTS ingestions_created_at_idx ON ingestions (created_at DESC);
`

// EnsureSchema creates the journal table if it does not exist
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
