//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/polwex/hpn-indexer/internal/store"
	"github.com/polwex/hpn-indexer/internal/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRepo_RoundTrip(t *testing.T) {
	db := setupTestContainer(t)
	ctx := context.Background()

	repo, err := postgres.NewSnapshotRepo(ctx, db)
	require.NoError(t, err)

	_, err = repo.Get(ctx, "state")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, repo.Set(ctx, "state", []byte(`{"last_checkpoint_block":1}`)))
	require.NoError(t, repo.Set(ctx, "state", []byte(`{"last_checkpoint_block":2}`)))

	got, err := repo.Get(ctx, "state")
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_checkpoint_block":2}`, string(got))

	require.NoError(t, repo.Delete(ctx, "state"))
	_, err = repo.Get(ctx, "state")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSnapshotRepo_TableCreationIsIdempotent(t *testing.T) {
	db := setupTestContainer(t)
	ctx := context.Background()

	_, err := postgres.NewSnapshotRepo(ctx, db)
	require.NoError(t, err)
	_, err = postgres.NewSnapshotRepo(ctx, db)
	require.NoError(t, err)
}
