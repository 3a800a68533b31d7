package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polwex/hpn-indexer/internal/chain"
	"github.com/polwex/hpn-indexer/internal/chain/hypermap"
	"github.com/polwex/hpn-indexer/internal/chain/rpc"
	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/metrics"
	"github.com/polwex/hpn-indexer/internal/pipeline/filter"
	"github.com/polwex/hpn-indexer/internal/pipeline/retry"
	"github.com/polwex/hpn-indexer/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const DefaultRetryDelay = 5 * time.Second

// ApplyFunc receives each backfilled log in chain order.
type ApplyFunc func(ctx context.Context, l event.Log)

// Fetcher runs historical backfill against a LogSource.
type Fetcher struct {
	source      chain.LogSource
	logger      *slog.Logger
	retryDelay  time.Duration
	maxAttempts int // 0 = unbounded
	sleepFn     func(ctx context.Context, d time.Duration) error
}

type Option func(*Fetcher)

func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.retryDelay = d
		}
	}
}

// WithMaxAttempts bounds the number of fetch attempts per backfill. Zero or
// less keeps retrying until the context ends.
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

func New(source chain.LogSource, logger *slog.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		source:     source,
		logger:     logger.With("component", "fetcher"),
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Backfill fetches every log matching sub from sub.FromBlock up to the
// current head, hands them to apply in returned order and returns the head
// it covered. Fetch errors are retried after a fixed delay.
func (f *Fetcher) Backfill(ctx context.Context, sub filter.Subscription, apply ApplyFunc) (int64, error) {
	fromBlock := sub.FromBlock
	ctx, span := tracing.Tracer("fetcher").Start(ctx, "fetcher.backfill",
		otelTrace.WithAttributes(
			attribute.String("subscription", sub.Name),
			attribute.Int64("from_block", fromBlock),
		),
	)

	head, logs, err := f.fetchWithRetry(ctx, sub, fromBlock)
	if err != nil {
		tracing.EndSpan(span, err)
		return 0, err
	}
	span.SetAttributes(
		attribute.Int64("head", head),
		attribute.Int("logs", len(logs)),
	)

	delivered := 0
	for _, raw := range logs {
		l, convErr := hypermap.FromRPC(raw)
		if convErr != nil {
			f.logger.Warn("skipping unparseable log",
				"subscription", sub.Name,
				"tx_hash", raw.TransactionHash,
				"error", convErr,
			)
			continue
		}
		apply(ctx, l)
		delivered++
	}
	metrics.BackfillLogsTotal.WithLabelValues(sub.Name).Add(float64(delivered))
	tracing.EndSpan(span, nil)

	f.logger.Info("backfill complete",
		"subscription", sub.Name,
		"from_block", fromBlock,
		"head", head,
		"logs", delivered,
	)
	return head, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, sub filter.Subscription, fromBlock int64) (int64, []*rpc.Log, error) {
	const stage = "fetcher.backfill"

	var lastErr error
	for attempt := 1; f.maxAttempts == 0 || attempt <= f.maxAttempts; attempt++ {
		head, logs, err := f.fetch(ctx, sub, fromBlock)
		if err == nil {
			return head, logs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}

		decision := retry.Classify(err)
		if decision.IsDefiniteTerminal() {
			f.logger.Error("backfill fetch failed with terminal error",
				"stage", stage,
				"subscription", sub.Name,
				"classification_reason", decision.Reason,
				"attempt", attempt,
				"error", err,
			)
			return 0, nil, fmt.Errorf("backfill terminal stage=%s subscription=%s reason=%s: %w",
				stage, sub.Name, decision.Reason, err)
		}
		metrics.BackfillRetriesTotal.WithLabelValues(sub.Name).Inc()
		f.logger.Warn("backfill fetch failed; retrying",
			"stage", stage,
			"subscription", sub.Name,
			"classification", decision.Class,
			"classification_reason", decision.Reason,
			"attempt", attempt,
			"delay", f.retryDelay,
			"error", err,
		)
		if f.maxAttempts > 0 && attempt == f.maxAttempts {
			break
		}
		if sleepErr := f.sleep(ctx, f.retryDelay); sleepErr != nil {
			return 0, nil, sleepErr
		}
	}
	return 0, nil, fmt.Errorf("backfill exhausted stage=%s subscription=%s attempts=%d: %w",
		stage, sub.Name, f.maxAttempts, lastErr)
}

func (f *Fetcher) fetch(ctx context.Context, sub filter.Subscription, fromBlock int64) (int64, []*rpc.Log, error) {
	head, err := f.source.GetBlockNumber(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("resolve head: %w", err)
	}
	if head < fromBlock {
		return head, nil, nil
	}
	logs, err := f.source.GetLogs(ctx, sub.Range(fromBlock, head))
	if err != nil {
		return 0, nil, fmt.Errorf("get logs %s [%d..%d]: %w", sub.Name, fromBlock, head, err)
	}
	return head, logs, nil
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if f.sleepFn != nil {
		return f.sleepFn(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
