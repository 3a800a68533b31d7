package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/polwex/hpn-indexer/internal/alert"
	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/domain/model"
	"github.com/polwex/hpn-indexer/internal/metrics"
	"github.com/polwex/hpn-indexer/internal/pipeline/checkpoint"
	"github.com/polwex/hpn-indexer/internal/pipeline/fetcher"
	"github.com/polwex/hpn-indexer/internal/pipeline/filter"
	"github.com/polwex/hpn-indexer/internal/pipeline/pending"
	"github.com/polwex/hpn-indexer/internal/pipeline/processor"
	"github.com/polwex/hpn-indexer/internal/pipeline/timer"
	"github.com/polwex/hpn-indexer/internal/store"
)

const (
	DefaultRetryDelay = 5 * time.Second
	DefaultInboxSize  = 1024

	alertSendTimeout = 10 * time.Second
)

// ErrUnknownCommand is returned by Do for a command the loop does not serve.
var ErrUnknownCommand = errors.New("unknown command")

type Config struct {
	ChainID            int64
	ContractAddress    string
	FirstBlock         int64
	RetryDelay         time.Duration
	CheckpointInterval time.Duration
}

// Backfiller runs historical catch-up for one subscription.
type Backfiller interface {
	Backfill(ctx context.Context, sub filter.Subscription, apply fetcher.ApplyFunc) (int64, error)
}

// Subscriber delivers live logs into the inbox.
type Subscriber interface {
	Subscribe(ctx context.Context, sub filter.Subscription)
	CancelAll()
}

// Timers arms one-shot timers that come back as event.TimerFired.
type Timers interface {
	After(d time.Duration, tag string)
}

// Deps are the collaborators of the dispatch loop.
type Deps struct {
	Schema     store.SchemaManager
	Processor  *processor.Processor
	Retrier    *pending.Retrier
	Backfiller Backfiller
	Subscriber Subscriber
	Timers     Timers
	Checkpoint *checkpoint.Checkpointer
	Alerter    alert.Alerter // optional
}

// Pipeline is the single-threaded dispatch loop. It owns the State; every
// mutation happens on the goroutine running Run.
type Pipeline struct {
	cfg     Config
	deps    Deps
	inbox   chan event.Message
	filters *filter.Builder
	health  *PipelineHealth
	logger  *slog.Logger

	state      *model.State
	retryArmed bool
}

func New(cfg Config, inbox chan event.Message, deps Deps, logger *slog.Logger) *Pipeline {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = checkpoint.DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		inbox:   inbox,
		filters: filter.NewBuilder(cfg.ContractAddress),
		health:  NewPipelineHealth(),
		logger:  logger.With("component", "pipeline"),
	}
}

func (p *Pipeline) Health() *PipelineHealth { return p.health }

// Run restores state, catches up, subscribes and then serves the inbox until
// ctx ends or a handler returns an error.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.deps.Subscriber.CancelAll()

	st, err := p.deps.Checkpoint.Load(ctx, p.freshState)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	p.state = st
	if err := p.deps.Schema.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := p.start(ctx); err != nil {
		return err
	}
	p.deps.Timers.After(p.cfg.CheckpointInterval, timer.TagCheckpoint)

	p.logger.Info("pipeline started",
		"cursor", p.state.LastCheckpointBlock,
		"providers", len(p.state.Providers),
		"pending", p.deps.Retrier.Len(),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-p.inbox:
			metrics.InboxDepth.Set(float64(len(p.inbox)))
			if err := p.handle(ctx, msg); err != nil {
				p.recordFailure("dispatch loop stopped", err)
				return err
			}
		}
	}
}

// Do asks the dispatch loop to run an administrative command and waits for
// its reply.
func (p *Pipeline) Do(ctx context.Context, name event.CommandName) (any, error) {
	reply := make(chan event.CommandResult, 1)
	select {
	case p.inbox <- event.AdminCommand{Name: name, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.Payload, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipeline) freshState() *model.State {
	return model.NewState(p.cfg.ChainID, p.cfg.ContractAddress, p.cfg.FirstBlock)
}

// start backfills both subscriptions from the cursor and subscribes each
// right after the head its backfill covered.
func (p *Pipeline) start(ctx context.Context) error {
	for _, sub := range p.filters.Build(p.state.LastCheckpointBlock) {
		began := time.Now()
		head, err := p.deps.Backfiller.Backfill(ctx, sub, p.applyLog)
		if err != nil {
			return fmt.Errorf("backfill %s: %w", sub.Name, err)
		}
		p.health.RecordLatency(time.Since(began))
		p.recordSuccess()

		live, _ := p.filters.Rebuild(sub.ID, head+1)
		p.deps.Subscriber.Subscribe(ctx, live)
	}
	return nil
}

func (p *Pipeline) handle(ctx context.Context, msg event.Message) error {
	switch m := msg.(type) {
	case event.LogReceived:
		p.applyLog(ctx, m.Log)
	case event.TimerFired:
		p.handleTimer(ctx, m.Tag)
	case event.SubscriptionFailed:
		p.resubscribe(ctx, m)
	case event.AdminCommand:
		return p.handleCommand(ctx, m)
	default:
		p.logger.Warn("unexpected inbox message", "type", fmt.Sprintf("%T", msg))
	}
	return nil
}

// applyLog runs the processor and queues the log when a dependency is missing.
func (p *Pipeline) applyLog(ctx context.Context, l event.Log) {
	res := p.deps.Processor.Apply(ctx, p.state, l)
	if res.Outcome == processor.Pending {
		p.deps.Retrier.Enqueue(l)
		p.armRetry()
	}
}

func (p *Pipeline) armRetry() {
	if p.retryArmed {
		return
	}
	p.retryArmed = true
	p.deps.Timers.After(p.cfg.RetryDelay, timer.TagRetry)
}

func (p *Pipeline) handleTimer(ctx context.Context, tag string) {
	switch tag {
	case timer.TagRetry:
		p.retryArmed = false
		remaining := p.deps.Retrier.Tick(ctx, func(ctx context.Context, l event.Log) bool {
			return p.deps.Processor.Apply(ctx, p.state, l).Outcome == processor.Pending
		})
		if remaining > 0 {
			p.armRetry()
		}
	case timer.TagCheckpoint:
		if err := p.deps.Checkpoint.Run(ctx, p.state); err != nil {
			p.recordFailure("checkpoint failed", err)
		} else {
			p.recordSuccess()
		}
		p.deps.Timers.After(p.cfg.CheckpointInterval, timer.TagCheckpoint)
	default:
		p.logger.Warn("unknown timer tag", "tag", tag)
	}
}

func (p *Pipeline) resubscribe(ctx context.Context, m event.SubscriptionFailed) {
	p.recordFailure("subscription failed", m.Err)
	sub, ok := p.filters.Rebuild(m.SubscriptionID, p.state.LastCheckpointBlock)
	if !ok {
		p.logger.Warn("subscription failure for unknown id", "id", m.SubscriptionID, "error", m.Err)
		return
	}
	p.logger.Warn("resubscribing",
		"subscription", sub.Name,
		"from_block", sub.FromBlock,
		"error", m.Err,
	)
	p.deps.Subscriber.Subscribe(ctx, sub)
}

func (p *Pipeline) handleCommand(ctx context.Context, cmd event.AdminCommand) error {
	var (
		res   event.CommandResult
		fatal error
	)
	switch cmd.Name {
	case event.CommandState:
		res.Payload = p.state.Clone()
	case event.CommandSchema:
		res.Payload, res.Err = p.deps.Schema.CheckSchema(ctx)
	case event.CommandReset:
		fatal = p.reset(ctx)
		res.Err = fatal
		if fatal == nil {
			res.Payload = p.state.Clone()
		}
	default:
		res.Err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
	if cmd.Reply != nil {
		cmd.Reply <- res
	}
	return fatal
}

// reset rebuilds everything from genesis: fresh state, empty pending queue,
// wiped tables, a new backfill and new subscriptions.
func (p *Pipeline) reset(ctx context.Context) error {
	p.logger.Info("reset requested", "first_block", p.cfg.FirstBlock)
	p.deps.Subscriber.CancelAll()
	p.state = p.freshState()
	p.deps.Retrier.Clear()

	if err := p.deps.Schema.Wipe(ctx); err != nil {
		return fmt.Errorf("reset wipe: %w", err)
	}
	if err := p.deps.Schema.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("reset schema: %w", err)
	}
	if err := p.start(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := p.deps.Checkpoint.Save(ctx, p.state); err != nil {
		p.logger.Error("saving state after reset failed", "error", err)
	}
	p.logger.Info("reset complete", "cursor", p.state.LastCheckpointBlock, "providers", len(p.state.Providers))
	p.notify(alert.Alert{
		Type:    alert.AlertTypeReset,
		Title:   "Index reset",
		Message: fmt.Sprintf("Re-indexed from block %d", p.cfg.FirstBlock),
		Fields: map[string]string{
			"cursor":    strconv.FormatInt(p.state.LastCheckpointBlock, 10),
			"providers": strconv.Itoa(len(p.state.Providers)),
		},
	})
	return nil
}

func (p *Pipeline) recordSuccess() {
	if p.health.RecordSuccess() {
		p.notify(alert.Alert{
			Type:    alert.AlertTypeRecovery,
			Title:   "Pipeline recovered",
			Message: "Provider calls are succeeding again.",
			Fields:  map[string]string{"cursor": strconv.FormatInt(p.state.LastCheckpointBlock, 10)},
		})
	}
}

func (p *Pipeline) recordFailure(reason string, err error) {
	if !p.health.RecordFailure() {
		return
	}
	fields := map[string]string{"cursor": strconv.FormatInt(p.state.LastCheckpointBlock, 10)}
	if err != nil {
		fields["error"] = err.Error()
	}
	p.notify(alert.Alert{
		Type:    alert.AlertTypeUnhealthy,
		Title:   "Pipeline unhealthy",
		Message: reason,
		Fields:  fields,
	})
}

// notify sends off the dispatch goroutine so a slow channel never stalls it.
func (p *Pipeline) notify(a alert.Alert) {
	if p.deps.Alerter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertSendTimeout)
		defer cancel()
		if err := p.deps.Alerter.Send(ctx, a); err != nil {
			p.logger.Warn("alert delivery failed", "type", a.Type, "error", err)
		}
	}()
}

// HealthSnapshot returns the current health as a JSON-encodable value.
func (p *Pipeline) HealthSnapshot() any { return p.health.Snapshot() }
