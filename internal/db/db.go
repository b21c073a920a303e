package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('user', 'admin')),
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
	id                UUID PRIMARY KEY,
	submitter_id      UUID NOT NULL REFERENCES accounts (id),
	task              TEXT NOT NULL,
	assignee_admin_id UUID NOT NULL REFERENCES accounts (id),
	status            TEXT NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected')),
	created_at        TIMESTAMPTZ NOT NULL,
	decided_at        TIMESTAMPTZ
);
`

// EnsureSchema creates the two tables on startup. There is deliberately no
// migration machinery; the schema is additive-only.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
