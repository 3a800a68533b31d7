package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/polwex/hpn-indexer/internal/store"
)

// SnapshotRepo keeps named state snapshots in PostgreSQL.
type SnapshotRepo struct {
	db *DB
}

var _ store.SnapshotStore = (*SnapshotRepo)(nil)

func NewSnapshotRepo(ctx context.Context, db *DB) (*SnapshotRepo, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			name       TEXT PRIMARY KEY,
			payload    BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &SnapshotRepo{db: db}, nil
}

func (r *SnapshotRepo) Get(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE name = $1`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", name, err)
	}
	return payload, nil
}

func (r *SnapshotRepo) Set(ctx context.Context, name string, payload []byte) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (name, payload, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, name, payload)
	if err != nil {
		return fmt.Errorf("set snapshot %s: %w", name, err)
	}
	return nil
}

func (r *SnapshotRepo) Delete(ctx context.Context, name string) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	return nil
}
