package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion counters, gauges and histograms for the registry indexer.

var (
	// Processor
	ProcessorLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "processor",
		Name:      "logs_total",
		Help:      "Total logs applied, by event kind and outcome",
	}, []string{"kind", "outcome"})

	ProcessorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "processor",
		Name:      "apply_duration_seconds",
		Help:      "Time to apply one log including relational writes",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}, []string{"kind"})

	// Pending retry queue
	PendingQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "pending",
		Name:      "queue_size",
		Help:      "Logs waiting on an unresolved dependency",
	})

	PendingRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "pending",
		Name:      "retries_total",
		Help:      "Pending log re-applications, by result",
	}, []string{"result"})

	PendingDeadLettersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "pending",
		Name:      "dead_letters_total",
		Help:      "Pending logs dropped after exhausting retry attempts",
	})

	// Cursor / checkpoint
	CursorBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "pipeline",
		Name:      "cursor_block",
		Help:      "Last processed block (read cursor)",
	})

	CheckpointRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "checkpoint",
		Name:      "runs_total",
		Help:      "Checkpoint timer firings, by result",
	}, []string{"result"})

	CheckpointSnapshotBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "checkpoint",
		Name:      "snapshot_bytes",
		Help:      "Size of the last persisted state snapshot",
	})

	// Fetcher / subscriptions
	BackfillRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "fetcher",
		Name:      "backfill_retries_total",
		Help:      "Backfill attempts that failed and were retried",
	}, []string{"subscription"})

	BackfillLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "fetcher",
		Name:      "backfill_logs_total",
		Help:      "Logs delivered by historical backfill",
	}, []string{"subscription"})

	SubscriptionLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "subscriber",
		Name:      "logs_total",
		Help:      "Logs delivered by live subscriptions",
	}, []string{"subscription"})

	SubscriptionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "subscriber",
		Name:      "errors_total",
		Help:      "Live subscription failures that triggered a resubscribe",
	}, []string{"subscription"})

	InboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "pipeline",
		Name:      "inbox_depth",
		Help:      "Messages waiting for the dispatch loop",
	})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "JSON-RPC calls, by method and status class",
	}, []string{"method", "status"})

	RPCRateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times RPC calls waited for rate limiter",
	})

	RPCBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "rpc",
		Name:      "breaker_state",
		Help:      "RPC circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	// Persistence
	StoreWriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "store",
		Name:      "write_errors_total",
		Help:      "Relational write failures, by operation",
	}, []string{"op"})

	DBPoolOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "db_pool",
		Name:      "open_connections",
		Help:      "Open connections in the database pool",
	}, []string{"store"})

	DBPoolInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "db_pool",
		Name:      "in_use",
		Help:      "Connections currently in use",
	}, []string{"store"})

	DBPoolIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "db_pool",
		Name:      "idle",
		Help:      "Idle connections in the pool",
	}, []string{"store"})

	DBPoolWaitCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "db_pool",
		Name:      "wait_count",
		Help:      "Total connections waited for",
	}, []string{"store"})

	DBPoolWaitDurationSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "db_pool",
		Name:      "wait_duration_seconds",
		Help:      "Total time blocked waiting for a connection",
	}, []string{"store"})

	// Health
	PipelineHealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "pipeline",
		Name:      "health_status",
		Help:      "Pipeline health status (0=UNKNOWN, 1=HEALTHY, 2=UNHEALTHY, 3=DEGRADED)",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered, by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by cooldown, by channel and type",
	}, []string{"channel", "type"})

	// Admin
	AdminRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "admin",
		Name:      "requests_total",
		Help:      "Admin API requests, by command and status code",
	}, []string{"command", "code"})
)
