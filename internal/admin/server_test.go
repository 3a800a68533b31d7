package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/store"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []event.CommandName
	payload any
	err     error
	block   bool
}

func (f *fakeRunner) called() []event.CommandName {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.CommandName(nil), f.calls...)
}

func (f *fakeRunner) Do(ctx context.Context, name event.CommandName) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.payload, f.err
}

type fakeDirectory struct {
	providers  []store.ProviderRow
	categories []store.CategoryRow
	lastQuery  string
	err        error
}

func (f *fakeDirectory) AllProviders(ctx context.Context) ([]store.ProviderRow, error) {
	f.lastQuery = "all"
	return f.providers, f.err
}

func (f *fakeDirectory) ProvidersByCategory(ctx context.Context, category string) ([]store.ProviderRow, error) {
	f.lastQuery = "category:" + category
	var out []store.ProviderRow
	for _, p := range f.providers {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, f.err
}

func (f *fakeDirectory) ProviderByHash(ctx context.Context, hash string) (*store.ProviderRow, error) {
	f.lastQuery = "hash:" + hash
	for _, p := range f.providers {
		if p.Hash == hash {
			row := p
			return &row, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDirectory) SearchProviders(ctx context.Context, query string) ([]store.ProviderRow, error) {
	f.lastQuery = "q:" + query
	return f.providers, f.err
}

func (f *fakeDirectory) Categories(ctx context.Context) ([]store.CategoryRow, error) {
	return f.categories, f.err
}

type fakeHealth struct{}

func (fakeHealth) HealthSnapshot() any { return map[string]string{"status": "HEALTHY"} }

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_StateReturnsRunnerPayload(t *testing.T) {
	runner := &fakeRunner{payload: map[string]int64{"last_checkpoint_block": 27_270_500}}
	s := NewServer(runner, slog.Default())

	rec := serve(t, s, http.MethodGet, "/admin/v1/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"last_checkpoint_block":27270500}`, rec.Body.String())
	assert.Equal(t, []event.CommandName{event.CommandState}, runner.called())
}

func TestServer_SchemaAndResetAreRouted(t *testing.T) {
	runner := &fakeRunner{payload: map[string]bool{"ok": true}}
	s := NewServer(runner, slog.Default())

	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodPost, "/admin/v1/schema").Code)
	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodPost, "/admin/v1/reset").Code)
	assert.Equal(t, []event.CommandName{event.CommandSchema, event.CommandReset}, runner.called())
}

func TestServer_ResetRequiresPost(t *testing.T) {
	runner := &fakeRunner{}
	s := NewServer(runner, slog.Default())

	rec := serve(t, s, http.MethodGet, "/admin/v1/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, runner.called())
}

func TestServer_CommandErrorIs500(t *testing.T) {
	s := NewServer(&fakeRunner{err: errors.New("wipe failed")}, slog.Default())

	rec := serve(t, s, http.MethodPost, "/admin/v1/reset")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "wipe failed", body.Error)
}

func TestServer_CommandTimeoutIs504(t *testing.T) {
	s := NewServer(&fakeRunner{block: true}, slog.Default(), WithCommandTimeout(10*time.Millisecond))

	rec := serve(t, s, http.MethodGet, "/admin/v1/state")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestServer_HealthWithoutProviderIs503(t *testing.T) {
	s := NewServer(&fakeRunner{}, slog.Default())
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodGet, "/admin/v1/health").Code)

	s = NewServer(&fakeRunner{}, slog.Default(), WithHealthProvider(fakeHealth{}))
	rec := serve(t, s, http.MethodGet, "/admin/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"HEALTHY"}`, rec.Body.String())
}

func TestServer_DirectoryQueries(t *testing.T) {
	dir := &fakeDirectory{
		providers: []store.ProviderRow{
			{ID: 1, Hash: "0xaa", Name: "alpha", Category: "llm", Created: 1},
			{ID: 2, Hash: "0xbb", Name: "beta", Category: "storage", Created: 2},
		},
		categories: []store.CategoryRow{{Name: "llm", Hash: "0x01"}, {Name: "storage", Hash: "0x02"}},
	}
	s := NewServer(&fakeRunner{}, slog.Default(), WithDirectory(dir))

	t.Run("categories", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/admin/v1/categories")
		require.Equal(t, http.StatusOK, rec.Code)
		var rows []store.CategoryRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		assert.Len(t, rows, 2)
	})

	t.Run("by category", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/admin/v1/providers?category=llm")
		require.Equal(t, http.StatusOK, rec.Code)
		var rows []store.ProviderRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "alpha", rows[0].Name)
		assert.Equal(t, "category:llm", dir.lastQuery)
	})

	t.Run("search", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/admin/v1/providers?q=alp")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "q:alp", dir.lastQuery)
	})

	t.Run("category and q together", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/admin/v1/providers?category=llm&q=alp")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("by hash is case insensitive", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/admin/v1/providers/0xBB")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hash:0xbb", dir.lastQuery)
	})

	t.Run("unknown hash", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/admin/v1/providers/0xcc").Code)
	})
}

func TestServer_DirectoryErrorIs500(t *testing.T) {
	s := NewServer(&fakeRunner{}, slog.Default(), WithDirectory(&fakeDirectory{err: errors.New("db closed")}))
	assert.Equal(t, http.StatusInternalServerError, serve(t, s, http.MethodGet, "/admin/v1/providers").Code)
}

func TestClient_RoundTrip(t *testing.T) {
	runner := &fakeRunner{payload: map[string]string{"ok": "yes"}}
	srv := httptest.NewServer(NewServer(runner, slog.Default()).Handler())
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	body, err := c.State(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":"yes"}`, string(body))

	_, err = c.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []event.CommandName{event.CommandState, event.CommandReset}, runner.called())
}

func TestClient_SurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeRunner{err: errors.New("schema broken")}, slog.Default()).Handler())
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Schema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "schema broken")
}
