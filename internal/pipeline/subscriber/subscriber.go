// Package subscriber delivers new logs for a subscription into the dispatch
// inbox by polling eth_getLogs past the last covered block.
package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polwex/hpn-indexer/internal/chain"
	"github.com/polwex/hpn-indexer/internal/chain/hypermap"
	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/metrics"
	"github.com/polwex/hpn-indexer/internal/pipeline/filter"
	"github.com/polwex/hpn-indexer/internal/pipeline/retry"
)

const DefaultPollInterval = 2 * time.Second

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Poller runs one polling goroutine per live subscription id. A poll error
// posts SubscriptionFailed and ends that subscription.
type Poller struct {
	source   chain.LogSource
	inbox    chan<- event.Message
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[int]*subscription
}

type Option func(*Poller)

func WithPollInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func New(source chain.LogSource, inbox chan<- event.Message, logger *slog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		source:   source,
		inbox:    inbox,
		interval: DefaultPollInterval,
		logger:   logger.With("component", "subscriber"),
		subs:     make(map[int]*subscription),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Subscribe starts delivering logs for sub from sub.FromBlock onwards. An
// existing subscription with the same id is replaced.
func (p *Poller) Subscribe(ctx context.Context, sub filter.Subscription) {
	p.Cancel(sub.ID)

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	p.subs[sub.ID] = s
	p.mu.Unlock()

	p.logger.Info("subscription started", "subscription", sub.Name, "id", sub.ID, "from_block", sub.FromBlock)
	go func() {
		defer close(s.done)
		defer p.remove(sub.ID, s)
		p.run(subCtx, sub)
	}()
}

// Cancel stops the subscription with id and waits for its goroutine.
func (p *Poller) Cancel(id int) {
	p.mu.Lock()
	s, ok := p.subs[id]
	delete(p.subs, id)
	p.mu.Unlock()
	if !ok {
		return
	}
	s.cancel()
	<-s.done
}

// CancelAll stops every subscription.
func (p *Poller) CancelAll() {
	p.mu.Lock()
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.Cancel(id)
	}
}

// Active reports whether a subscription with id is running.
func (p *Poller) Active(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.subs[id]
	return ok
}

func (p *Poller) remove(id int, s *subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs[id] == s {
		delete(p.subs, id)
	}
}

func (p *Poller) run(ctx context.Context, sub filter.Subscription) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	next := sub.FromBlock
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		covered, err := p.poll(ctx, sub, next)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.fail(ctx, sub, err)
			return
		}
		if covered >= next {
			next = covered + 1
		}
	}
}

// poll delivers logs in [from, head] and returns head, or from-1 when the
// head has not reached from yet.
func (p *Poller) poll(ctx context.Context, sub filter.Subscription, from int64) (int64, error) {
	head, err := p.source.GetBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve head: %w", err)
	}
	if head < from {
		return from - 1, nil
	}
	logs, err := p.source.GetLogs(ctx, sub.Range(from, head))
	if err != nil {
		return 0, fmt.Errorf("get logs %s [%d..%d]: %w", sub.Name, from, head, err)
	}
	for _, raw := range logs {
		l, convErr := hypermap.FromRPC(raw)
		if convErr != nil {
			p.logger.Warn("skipping unparseable log", "subscription", sub.Name, "tx_hash", raw.TransactionHash, "error", convErr)
			continue
		}
		select {
		case p.inbox <- event.LogReceived{SubscriptionID: sub.ID, Log: l}:
			metrics.SubscriptionLogsTotal.WithLabelValues(sub.Name).Inc()
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return head, nil
}

func (p *Poller) fail(ctx context.Context, sub filter.Subscription, err error) {
	decision := retry.Classify(err)
	metrics.SubscriptionErrorsTotal.WithLabelValues(sub.Name).Inc()
	p.logger.Warn("subscription failed",
		"subscription", sub.Name,
		"id", sub.ID,
		"classification", decision.Class,
		"classification_reason", decision.Reason,
		"error", err,
	)
	select {
	case p.inbox <- event.SubscriptionFailed{SubscriptionID: sub.ID, Err: err}:
	case <-ctx.Done():
	}
}
