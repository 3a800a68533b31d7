package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/polwex/hpn-indexer/internal/store"
)

// SnapshotRepo stores named blobs in the snapshots table.
type SnapshotRepo struct {
	db    *DB
	nowFn func() time.Time
}

var _ store.SnapshotStore = (*SnapshotRepo)(nil)

// NewSnapshotRepo creates the snapshots table if needed.
func NewSnapshotRepo(ctx context.Context, db *DB) (*SnapshotRepo, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &SnapshotRepo{db: db, nowFn: time.Now}, nil
}

func (r *SnapshotRepo) Get(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE name = ?`, name).Scan(&payload)
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

	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots (name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, payload, r.nowFn().Unix())
	if err != nil {
		return fmt.Errorf("set snapshot %s: %w", name, err)
	}
	return nil
}

func (r *SnapshotRepo) Delete(ctx context.Context, name string) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	return nil
}
