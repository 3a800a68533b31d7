package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/metrics"
	"github.com/polwex/hpn-indexer/internal/store"
)

const defaultCommandTimeout = 30 * time.Second

// CommandRunner executes administrative commands on the dispatch loop.
// Satisfied by *pipeline.Pipeline.
type CommandRunner interface {
	Do(ctx context.Context, name event.CommandName) (any, error)
}

// HealthProvider returns a JSON-encodable health snapshot.
type HealthProvider interface {
	HealthSnapshot() any
}

// Server provides the HTTP admin API: state inspection, schema check,
// reset and read-only directory queries.
type Server struct {
	runner         CommandRunner
	directory      store.DirectoryReader
	healthProvider HealthProvider
	commandTimeout time.Duration
	logger         *slog.Logger
}

type ServerOption func(*Server)

func WithDirectory(d store.DirectoryReader) ServerOption {
	return func(s *Server) { s.directory = d }
}

func WithHealthProvider(hp HealthProvider) ServerOption {
	return func(s *Server) { s.healthProvider = hp }
}

// WithCommandTimeout bounds how long state and schema requests wait for the
// dispatch loop. Reset waits as long as the client does.
func WithCommandTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.commandTimeout = d
		}
	}
}

func NewServer(runner CommandRunner, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		runner:         runner,
		commandTimeout: defaultCommandTimeout,
		logger:         logger.With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /admin/v1/state", instrument("state", s.handleCommand(event.CommandState, true)))
	mux.Handle("POST /admin/v1/schema", instrument("schema", s.handleCommand(event.CommandSchema, true)))
	mux.Handle("POST /admin/v1/reset", instrument("reset", s.handleCommand(event.CommandReset, false)))
	mux.Handle("GET /admin/v1/health", instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /admin/v1/categories", instrument("categories", http.HandlerFunc(s.handleCategories)))
	mux.Handle("GET /admin/v1/providers", instrument("providers", http.HandlerFunc(s.handleProviders)))
	mux.Handle("GET /admin/v1/providers/{hash}", instrument("provider", http.HandlerFunc(s.handleProvider)))
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func instrument(command string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)
		metrics.AdminRequestsTotal.WithLabelValues(command, strconv.Itoa(sw.statusCode)).Inc()
	})
}

func (s *Server) handleCommand(name event.CommandName, bounded bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if bounded {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.commandTimeout)
			defer cancel()
		}

		payload, err := s.runner.Do(ctx, name)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, payload)
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "indexer busy; command timed out")
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
		default:
			s.logger.Error("admin command failed", "command", name, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.healthProvider == nil {
		writeError(w, http.StatusServiceUnavailable, "health provider not available")
		return
	}
	writeJSON(w, http.StatusOK, s.healthProvider.HealthSnapshot())
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeError(w, http.StatusServiceUnavailable, "directory not available")
		return
	}
	rows, err := s.directory.Categories(r.Context())
	if err != nil {
		s.logger.Error("list categories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleProviders lists providers, filtered by ?category= or searched by ?q=.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeError(w, http.StatusServiceUnavailable, "directory not available")
		return
	}
	query := r.URL.Query()
	category, search := query.Get("category"), query.Get("q")
	if category != "" && search != "" {
		writeError(w, http.StatusBadRequest, "category and q are mutually exclusive")
		return
	}

	var (
		rows []store.ProviderRow
		err  error
	)
	switch {
	case category != "":
		rows, err = s.directory.ProvidersByCategory(r.Context(), category)
	case search != "":
		rows, err = s.directory.SearchProviders(r.Context(), search)
	default:
		rows, err = s.directory.AllProviders(r.Context())
	}
	if err != nil {
		s.logger.Error("list providers failed", "category", category, "q", search, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleProvider(w http.ResponseWriter, r *http.Request) {
	if s.directory == nil {
		writeError(w, http.StatusServiceUnavailable, "directory not available")
		return
	}
	row, err := s.directory.ProviderByHash(r.Context(), strings.ToLower(r.PathValue("hash")))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}
	if err != nil {
		s.logger.Error("get provider failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, row)
}
