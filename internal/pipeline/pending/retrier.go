package pending

import (
	"context"
	"log/slog"
	"time"

	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/metrics"
)

// DefaultMaxAttempts is the number of retry cycles before an entry is dropped.
const DefaultMaxAttempts = 3

// ApplyFunc re-submits a log and reports whether it is still pending.
type ApplyFunc func(ctx context.Context, l event.Log) (stillPending bool)

// Retrier drives the pending queue: one pass over every entry per Tick.
type Retrier struct {
	queue       Queue
	maxAttempts int
	sink        DeadLetterSink
	logger      *slog.Logger
	nowFn       func() time.Time
}

type Option func(*Retrier)

func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithDeadLetterSink(s DeadLetterSink) Option {
	return func(r *Retrier) {
		if s != nil {
			r.sink = s
		}
	}
}

func NewRetrier(queue Queue, logger *slog.Logger, opts ...Option) *Retrier {
	if queue == nil {
		queue = NewListQueue()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retrier{
		queue:       queue,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger.With("component", "pending"),
		nowFn:       time.Now,
	}
	r.sink = NewLogSink(r.logger)
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Enqueue adds a freshly pending log.
func (r *Retrier) Enqueue(l event.Log) {
	r.queue.Push(Entry{Log: l, EnqueuedAt: r.nowFn()})
	metrics.PendingQueueSize.Set(float64(r.queue.Len()))
}

func (r *Retrier) Len() int {
	return r.queue.Len()
}

func (r *Retrier) Clear() {
	r.queue.Clear()
	metrics.PendingQueueSize.Set(0)
}

// Tick re-submits every queued entry once. Entries that are no longer
// pending leave the queue; the rest count one more attempt and are dropped
// to the dead-letter sink at the ceiling. It returns the queue length after
// the pass.
func (r *Retrier) Tick(ctx context.Context, apply ApplyFunc) int {
	entries := r.queue.Drain()
	for _, e := range entries {
		if !apply(ctx, e.Log) {
			metrics.PendingRetriesTotal.WithLabelValues("resolved").Inc()
			continue
		}
		e.Attempts++
		if e.Attempts >= r.maxAttempts {
			metrics.PendingRetriesTotal.WithLabelValues("dropped").Inc()
			r.deadLetter(ctx, e)
			continue
		}
		metrics.PendingRetriesTotal.WithLabelValues("requeued").Inc()
		r.queue.Push(e)
	}
	n := r.queue.Len()
	metrics.PendingQueueSize.Set(float64(n))
	if len(entries) > 0 {
		r.logger.Debug("pending retry pass", "entries", len(entries), "remaining", n)
	}
	return n
}

func (r *Retrier) deadLetter(ctx context.Context, e Entry) {
	metrics.PendingDeadLettersTotal.Inc()
	dl := DeadLetter{
		Log:        e.Log,
		Attempts:   e.Attempts,
		EnqueuedAt: e.EnqueuedAt,
		DroppedAt:  r.nowFn(),
	}
	if err := r.sink.DeadLetter(ctx, dl); err != nil {
		r.logger.Error("dead letter sink failed", "log_id", e.Log.ID(), "error", err)
	}
}
