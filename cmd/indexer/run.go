package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/polwex/hpn-indexer/internal/admin"
	"github.com/polwex/hpn-indexer/internal/alert"
	"github.com/polwex/hpn-indexer/internal/chain/ratelimit"
	"github.com/polwex/hpn-indexer/internal/chain/rpc"
	"github.com/polwex/hpn-indexer/internal/circuitbreaker"
	"github.com/polwex/hpn-indexer/internal/config"
	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/metrics"
	"github.com/polwex/hpn-indexer/internal/pipeline"
	"github.com/polwex/hpn-indexer/internal/pipeline/checkpoint"
	"github.com/polwex/hpn-indexer/internal/pipeline/fetcher"
	"github.com/polwex/hpn-indexer/internal/pipeline/pending"
	"github.com/polwex/hpn-indexer/internal/pipeline/processor"
	"github.com/polwex/hpn-indexer/internal/pipeline/subscriber"
	"github.com/polwex/hpn-indexer/internal/pipeline/timer"
	"github.com/polwex/hpn-indexer/internal/store"
	"github.com/polwex/hpn-indexer/internal/store/postgres"
	redispkg "github.com/polwex/hpn-indexer/internal/store/redis"
	s3store "github.com/polwex/hpn-indexer/internal/store/s3"
	"github.com/polwex/hpn-indexer/internal/store/sqlite"
	"github.com/polwex/hpn-indexer/internal/tracing"
)

const (
	serviceName         = "hpn-indexer"
	poolStatsInterval   = 15 * time.Second
	serverShutdownGrace = 5 * time.Second
)

// closer collects shutdown hooks and runs them in reverse order.
type closer []func()

func (c *closer) add(fn func()) { *c = append(*c, fn) }

func (c closer) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var cleanup closer
	defer cleanup.run()

	logger.Info("starting hpn-indexer",
		"rpc_url", cfg.RPC.URL,
		"hypermap", cfg.Hypermap.Address,
		"chain_id", cfg.Hypermap.ChainID,
		"first_block", cfg.Hypermap.FirstBlock,
		"root_label", cfg.Hypermap.RootLabel,
		"db_path", cfg.DB.Path,
		"snapshot_backend", cfg.Snapshot.Backend,
	)

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: serviceName,
		Endpoint:    tracingEndpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	cleanup.add(func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	})
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	db, err := sqlite.Open(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open directory database: %w", err)
	}
	cleanup.add(func() { db.Close() })
	logger.Info("opened directory database", "path", db.Path())

	directory := sqlite.NewDirectoryRepo(db, logger)
	pools := []poolTarget{{name: "sqlite", db: db}}

	snapshots, snapshotPool, closeSnapshots, err := openSnapshotStore(ctx, cfg.Snapshot, db)
	if err != nil {
		return err
	}
	cleanup.add(closeSnapshots)
	if snapshotPool != nil {
		pools = append(pools, poolTarget{name: cfg.Snapshot.Backend, db: snapshotPool})
	}

	alerter := buildAlerter(cfg.Alert, logger)

	sink, closeSink, err := buildDeadLetterSink(ctx, cfg.Redis, alerter, logger)
	if err != nil {
		return err
	}
	cleanup.add(closeSink)

	client := newRPCClient(cfg.RPC, logger)

	inbox := make(chan event.Message, cfg.Pipeline.InboxSize)

	g, gCtx := errgroup.WithContext(ctx)

	timers := timer.New(gCtx, inbox)
	cleanup.add(timers.Stop)

	poller := subscriber.New(client, inbox, logger,
		subscriber.WithPollInterval(cfg.Pipeline.SubscriptionPollInterval()))
	cleanup.add(poller.CancelAll)

	p := pipeline.New(pipeline.Config{
		ChainID:            cfg.Hypermap.ChainID,
		ContractAddress:    cfg.Hypermap.Address,
		FirstBlock:         cfg.Hypermap.FirstBlock,
		RetryDelay:         cfg.Pipeline.RetryDelay(),
		CheckpointInterval: cfg.Pipeline.CheckpointInterval(),
	}, inbox, pipeline.Deps{
		Schema:    directory,
		Processor: processor.New(directory, logger, processor.WithRootLabel(cfg.Hypermap.RootLabel)),
		Retrier: pending.NewRetrier(pending.NewListQueue(), logger,
			pending.WithMaxAttempts(cfg.Pipeline.PendingMaxAttempts),
			pending.WithDeadLetterSink(sink),
		),
		Backfiller: fetcher.New(client, logger,
			fetcher.WithRetryDelay(cfg.Pipeline.BackfillRetryDelay()),
			fetcher.WithMaxAttempts(cfg.Pipeline.BackfillMaxAttempts),
		),
		Subscriber: poller,
		Timers:     timers,
		Checkpoint: checkpoint.New(client, snapshots, cfg.Snapshot.Name, logger),
		Alerter:    alerter,
	}, logger)

	adminServer := admin.NewServer(p, logger,
		admin.WithDirectory(directory),
		admin.WithHealthProvider(p),
	)
	limiter := admin.NewRateLimitMiddleware(logger, cfg.Server.AdminRPS)
	cleanup.add(limiter.Stop)
	adminHandler := admin.AuditMiddleware(logger, limiter.Wrap(adminServer.Handler()))

	g.Go(func() error {
		return p.Run(gCtx)
	})
	g.Go(func() error {
		return serveHTTP(gCtx, "admin", cfg.Server.AdminAddr, adminHandler, logger)
	})
	g.Go(func() error {
		return serveHTTP(gCtx, "health", fmt.Sprintf(":%d", cfg.Server.HealthPort), healthHandler(logger), logger)
	})

	startDBPoolStatsPump(gCtx, pools, poolStatsInterval, logger)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newRPCClient(cfg config.RPCConfig, logger *slog.Logger) *rpc.Client {
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerOpen(),
		OnStateChange: func(from, to circuitbreaker.State) {
			metrics.RPCBreakerState.Set(float64(to))
			logger.Warn("rpc circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
	opts := []rpc.Option{
		rpc.WithTimeout(cfg.Timeout()),
		rpc.WithBreaker(breaker),
	}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, rpc.WithRateLimiter(ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)))
	}
	return rpc.NewClient(cfg.URL, logger, opts...)
}

// openSnapshotStore returns the configured snapshot backend. The sqlite
// backend shares the directory database. pool is non-nil for backends that
// own a connection pool worth sampling.
func openSnapshotStore(ctx context.Context, cfg config.SnapshotConfig, db *sqlite.DB) (store.SnapshotStore, dbStatsProvider, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.SnapshotBackendSQLite, "":
		repo, err := sqlite.NewSnapshotRepo(ctx, db)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("init sqlite snapshot store: %w", err)
		}
		return repo, nil, noop, nil

	case config.SnapshotBackendPostgres:
		pg, err := postgres.New(postgres.DefaultConfig(cfg.PGURL))
		if err != nil {
			return nil, nil, noop, fmt.Errorf("connect snapshot database: %w", err)
		}
		repo, err := postgres.NewSnapshotRepo(ctx, pg)
		if err != nil {
			pg.Close()
			return nil, nil, noop, fmt.Errorf("init postgres snapshot store: %w", err)
		}
		return repo, pg, func() { pg.Close() }, nil

	case config.SnapshotBackendS3:
		s, err := s3store.New(ctx, s3store.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("init s3 snapshot store: %w", err)
		}
		return s, nil, noop, nil

	default:
		return nil, nil, noop, fmt.Errorf("unsupported snapshot backend %q", cfg.Backend)
	}
}

// buildAlerter returns nil when no alert channel is configured.
func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(channels) == 0 {
		return nil
	}
	logger.Info("alerting enabled", "channels", len(channels), "cooldown", cfg.Cooldown().String())
	return alert.NewMultiAlerter(cfg.Cooldown(), logger, channels...)
}

// buildDeadLetterSink always logs dropped logs. It also raises an alert when
// alerter is set and publishes to a Redis stream when REDIS_URL is set.
func buildDeadLetterSink(ctx context.Context, cfg config.RedisConfig, alerter alert.Alerter, logger *slog.Logger) (pending.DeadLetterSink, func(), error) {
	logSink := pending.NewLogSink(logger)
	sinks := pending.MultiSink{logSink}
	if alerter != nil {
		sinks = append(sinks, alert.NewDeadLetterSink(alerter))
	}
	if cfg.URL == "" {
		if len(sinks) == 1 {
			return logSink, func() {}, nil
		}
		return sinks, func() {}, nil
	}

	stream, err := redispkg.NewStream(ctx, cfg.URL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("connect dead-letter stream: %w", err)
	}
	logger.Info("dead-letter stream enabled", "stream", cfg.DeadLetterStream)
	closeFn := func() {
		if err := stream.Close(); err != nil {
			logger.Warn("redis close error", "error", err)
		}
	}
	return append(sinks, pending.NewStreamSink(stream, cfg.DeadLetterStream)), closeFn, nil
}

func healthHandler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// serveHTTP runs an HTTP server until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, name, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("server shutdown error", "server", name, "error", err)
		}
	}()

	logger.Info("server started", "server", name, "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
