// Package checkpoint advances the read cursor to the chain head on a timer
// and persists the in-memory state as a snapshot.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polwex/hpn-indexer/internal/chain"
	"github.com/polwex/hpn-indexer/internal/domain/model"
	"github.com/polwex/hpn-indexer/internal/metrics"
	"github.com/polwex/hpn-indexer/internal/store"
)

const (
	DefaultInterval     = 5 * time.Minute
	DefaultSnapshotName = "hpn-indexer-state"
)

// HeadSource resolves the current chain head.
type HeadSource interface {
	GetBlockNumber(ctx context.Context) (int64, error)
}

var _ HeadSource = (chain.LogSource)(nil)

type Checkpointer struct {
	heads     HeadSource
	snapshots store.SnapshotStore
	name      string
	logger    *slog.Logger
}

func New(heads HeadSource, snapshots store.SnapshotStore, name string, logger *slog.Logger) *Checkpointer {
	if name == "" {
		name = DefaultSnapshotName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checkpointer{
		heads:     heads,
		snapshots: snapshots,
		name:      name,
		logger:    logger.With("component", "checkpoint"),
	}
}

// Run moves the cursor of st to the chain head when it is ahead and saves
// st. A failed head query skips the cycle without saving.
func (c *Checkpointer) Run(ctx context.Context, st *model.State) error {
	head, err := c.heads.GetBlockNumber(ctx)
	if err != nil {
		metrics.CheckpointRunsTotal.WithLabelValues("head_error").Inc()
		c.logger.Warn("checkpoint skipped: head query failed", "error", err)
		return fmt.Errorf("checkpoint head: %w", err)
	}
	st.AdvanceCursor(head)
	metrics.CursorBlock.Set(float64(st.LastCheckpointBlock))

	if err := c.Save(ctx, st); err != nil {
		metrics.CheckpointRunsTotal.WithLabelValues("save_error").Inc()
		c.logger.Error("checkpoint snapshot save failed", "error", err)
		return err
	}
	metrics.CheckpointRunsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("checkpoint saved", "cursor", st.LastCheckpointBlock, "head", head)
	return nil
}

// Save persists st under the configured snapshot name.
func (c *Checkpointer) Save(ctx context.Context, st *model.State) error {
	payload, err := st.Marshal()
	if err != nil {
		return err
	}
	if err := c.snapshots.Set(ctx, c.name, payload); err != nil {
		return fmt.Errorf("save snapshot %s: %w", c.name, err)
	}
	metrics.CheckpointSnapshotBytes.Set(float64(len(payload)))
	return nil
}

// Load restores the saved state. A missing or undecodable snapshot yields
// fresh(); other read errors are returned.
func (c *Checkpointer) Load(ctx context.Context, fresh func() *model.State) (*model.State, error) {
	payload, err := c.snapshots.Get(ctx, c.name)
	if errors.Is(err, store.ErrNotFound) {
		c.logger.Info("no saved state; starting fresh", "snapshot", c.name)
		return fresh(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", c.name, err)
	}
	st, err := model.UnmarshalState(payload)
	if err != nil {
		c.logger.Warn("saved state unreadable; starting fresh", "snapshot", c.name, "error", err)
		return fresh(), nil
	}
	c.logger.Info("state restored",
		"snapshot", c.name,
		"cursor", st.LastCheckpointBlock,
		"providers", len(st.Providers),
		"categories", len(st.Categories),
	)
	return st, nil
}
