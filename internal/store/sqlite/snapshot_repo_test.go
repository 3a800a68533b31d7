package sqlite

import (
	"context"
	"log/slog"
	"testing"

	"github.com/polwex/hpn-indexer/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRepo_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	repo, err := NewSnapshotRepo(ctx, openTestDB(t))
	require.NoError(t, err)

	_, err = repo.Get(ctx, "state")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, repo.Set(ctx, "state", []byte(`{"v":1}`)))
	require.NoError(t, repo.Set(ctx, "state", []byte(`{"v":2}`)))

	got, err := repo.Get(ctx, "state")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))

	require.NoError(t, repo.Delete(ctx, "state"))
	require.NoError(t, repo.Delete(ctx, "state"))
	_, err = repo.Get(ctx, "state")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSnapshotRepo_SurvivesDirectoryWipe(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	snaps, err := NewSnapshotRepo(ctx, db)
	require.NoError(t, err)
	require.NoError(t, snaps.Set(ctx, "state", []byte("x")))

	dir := NewDirectoryRepo(db, slog.Default())
	require.NoError(t, dir.EnsureSchema(ctx))
	require.NoError(t, dir.Wipe(ctx))

	got, err := snaps.Get(ctx, "state")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}
