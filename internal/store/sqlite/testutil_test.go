package sqlite

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestDirectory(t *testing.T) *DirectoryRepo {
	t.Helper()
	repo := NewDirectoryRepo(openTestDB(t), slog.Default())
	repo.nowFn = func() time.Time { return time.Unix(1_700_000_000, 0) }
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}
