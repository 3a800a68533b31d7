package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polwex/hpn-indexer/internal/alert"
	"github.com/polwex/hpn-indexer/internal/config"
	"github.com/polwex/hpn-indexer/internal/pipeline/pending"
	"github.com/polwex/hpn-indexer/internal/store"
	"github.com/polwex/hpn-indexer/internal/store/sqlite"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equalf(t, want, parseLogLevel(in), "level %q", in)
	}
}

func TestNewLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "warn").Info("hidden")
	assert.Zero(t, buf.Len())

	newLogger(&buf, "debug").Debug("shown", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestAdminSubcommands_PrintResponse(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	for _, name := range []string{"state", "schema", "reset"} {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{name, "--admin-url", srv.URL})
		require.NoError(t, root.Execute(), name)
		assert.Equal(t, "{\"ok\":true}\n", out.String())
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /admin/v1/state",
		"POST /admin/v1/schema",
		"POST /admin/v1/reset",
	}, paths)
}

func TestAdminSubcommands_ReportServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	root := newRootCmd()
	var errOut bytes.Buffer
	root.SetErr(&errOut)
	root.SetArgs([]string{"reset", "--admin-url", srv.URL})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, errOut.String(), "rate limit exceeded")
}

func TestOpenSnapshotStore_SQLiteSharesDirectoryDB(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "hpn.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	snapshots, pool, closeFn, err := openSnapshotStore(ctx, config.SnapshotConfig{Backend: config.SnapshotBackendSQLite}, db)
	require.NoError(t, err)
	defer closeFn()
	assert.Nil(t, pool)

	require.NoError(t, snapshots.Set(ctx, "state", []byte(`{"v":1}`)))
	got, err := snapshots.Get(ctx, "state")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(got))

	_, err = snapshots.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOpenSnapshotStore_UnknownBackend(t *testing.T) {
	_, _, closeFn, err := openSnapshotStore(context.Background(), config.SnapshotConfig{Backend: "etcd"}, nil)
	require.Error(t, err)
	assert.NotNil(t, closeFn)
	assert.Contains(t, err.Error(), "etcd")
}

func TestBuildDeadLetterSink_LogOnlyWithoutRedis(t *testing.T) {
	sink, closeFn, err := buildDeadLetterSink(context.Background(), config.RedisConfig{}, nil, slog.Default())
	require.NoError(t, err)
	defer closeFn()
	_, ok := sink.(*pending.LogSink)
	assert.True(t, ok, "expected a plain log sink, got %T", sink)
}

func TestBuildDeadLetterSink_AddsAlertSink(t *testing.T) {
	sink, closeFn, err := buildDeadLetterSink(context.Background(), config.RedisConfig{}, alert.NoopAlerter{}, slog.Default())
	require.NoError(t, err)
	defer closeFn()
	multi, ok := sink.(pending.MultiSink)
	require.True(t, ok, "expected a multi sink, got %T", sink)
	assert.Len(t, multi, 2)
}

func TestBuildAlerter(t *testing.T) {
	assert.Nil(t, buildAlerter(config.AlertConfig{}, slog.Default()))

	a := buildAlerter(config.AlertConfig{
		SlackWebhookURL: "http://slack.local/hook",
		WebhookURL:      "http://hooks.local/alert",
		CooldownSec:     60,
	}, slog.Default())
	multi, ok := a.(*alert.MultiAlerter)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
}

func TestHealthHandler(t *testing.T) {
	h := healthHandler(slog.Default())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "indexer_")
}

func TestCloser_RunsInReverseOrder(t *testing.T) {
	var order []int
	var c closer
	c.add(func() { order = append(order, 1) })
	c.add(func() { order = append(order, 2) })
	c.run()
	assert.Equal(t, []int{2, 1}, order)
}
