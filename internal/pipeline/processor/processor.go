package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/polwex/hpn-indexer/internal/chain/hypermap"
	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/domain/model"
	"github.com/polwex/hpn-indexer/internal/metrics"
	"github.com/polwex/hpn-indexer/internal/store"
	"github.com/polwex/hpn-indexer/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
)

// DefaultRootLabel is the mint label that designates the root identity.
const DefaultRootLabel = "hpn-testing-beta"

// Outcome classifies what applying one log did.
type Outcome int

const (
	// Applied: the event mutated (or was already reflected in) state.
	Applied Outcome = iota
	// Pending: a dependency (root, category, provider) is not known yet.
	Pending
	// Malformed: the log or its payload cannot be decoded. Never retried.
	Malformed
	// Ignored: the log is not an event the indexer handles.
	Ignored
	// Failed: the relational write failed. State was not touched.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Pending:
		return "pending"
	case Malformed:
		return "malformed"
	case Ignored:
		return "ignored"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrPending explains a Pending outcome.
	ErrPending = errors.New("dependency not yet indexed")
	// ErrPersistence wraps relational write failures.
	ErrPersistence = errors.New("persistence error")
)

// Result is the outcome of Apply with the decoded kind and the cause for
// anything other than Applied and Ignored.
type Result struct {
	Outcome Outcome
	Kind    string
	Err     error
}

// Processor applies hypermap events to a State and its relational mirror.
// It is not safe for concurrent use; the dispatch loop owns it.
type Processor struct {
	writer    store.DirectoryWriter
	rootLabel string
	logger    *slog.Logger
}

type Option func(*Processor)

// WithRootLabel overrides DefaultRootLabel.
func WithRootLabel(label string) Option {
	return func(p *Processor) {
		if label != "" {
			p.rootLabel = label
		}
	}
}

func New(writer store.DirectoryWriter, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		writer:    writer,
		rootLabel: DefaultRootLabel,
		logger:    logger.With("component", "processor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Apply decodes l and applies it to st. Whatever the outcome, the cursor
// moves to the log's block when it is ahead.
func (p *Processor) Apply(ctx context.Context, st *model.State, l event.Log) Result {
	start := time.Now()
	ctx, span := tracing.Tracer("processor").Start(ctx, "processor.apply",
		otelTrace.WithAttributes(attribute.String("log_id", l.ID())),
	)

	res := p.apply(ctx, st, l)
	if l.BlockNumber != nil {
		st.AdvanceCursor(*l.BlockNumber)
	}

	span.SetAttributes(
		attribute.String("kind", res.Kind),
		attribute.String("outcome", res.Outcome.String()),
	)
	var spanErr error
	if res.Outcome == Failed {
		spanErr = res.Err
	}
	tracing.EndSpan(span, spanErr)

	metrics.ProcessorLogsTotal.WithLabelValues(res.Kind, res.Outcome.String()).Inc()
	metrics.ProcessorLatency.WithLabelValues(res.Kind).Observe(time.Since(start).Seconds())
	metrics.CursorBlock.Set(float64(st.LastCheckpointBlock))

	switch res.Outcome {
	case Malformed:
		p.logger.Warn("malformed log dropped", "log_id", l.ID(), "kind", res.Kind, "error", res.Err)
	case Failed:
		p.logger.Error("log dropped after persistence failure", "log_id", l.ID(), "kind", res.Kind, "error", res.Err)
	case Pending:
		p.logger.Debug("log pending", "log_id", l.ID(), "kind", res.Kind, "reason", res.Err)
	}
	return res
}

func (p *Processor) apply(ctx context.Context, st *model.State, l event.Log) Result {
	decoded, err := hypermap.Decode(l)
	if err != nil {
		return Result{Outcome: Malformed, Kind: kindFromTopic(l), Err: err}
	}

	switch ev := decoded.(type) {
	case event.Registration:
		return p.applyRegistration(ctx, st, ev)
	case event.Annotation:
		return p.applyAnnotation(ctx, st, ev, l.ID())
	default:
		return Result{Outcome: Ignored, Kind: event.Kind(decoded)}
	}
}

func (p *Processor) applyRegistration(ctx context.Context, st *model.State, ev event.Registration) Result {
	res := Result{Kind: event.Kind(ev)}

	if ev.Label == p.rootLabel {
		st.SetRoot(ev.Child)
		p.logger.Info("root identity set", "root", ev.Child)
		return res
	}

	if st.IsRoot(ev.Parent) {
		if err := p.writer.InsertCategory(ctx, ev.Child.String(), ev.Label); err != nil {
			return failed(res, err)
		}
		st.Categories[ev.Child] = ev.Label
		return res
	}

	category, ok := st.Categories[ev.Parent]
	if !ok {
		res.Outcome = Pending
		res.Err = fmt.Errorf("%w: parent %s of %q", ErrPending, ev.Parent, ev.Label)
		return res
	}
	if err := p.writer.InsertProvider(ctx, ev.Child.String(), ev.Label, category); err != nil {
		return failed(res, err)
	}
	if existing, ok := st.Providers[ev.Child]; ok {
		existing.Name = ev.Label
		existing.Category = category
	} else {
		st.Providers[ev.Child] = model.NewProvider(ev.Child, ev.Label, category)
	}
	return res
}

func (p *Processor) applyAnnotation(ctx context.Context, st *model.State, ev event.Annotation, logID string) Result {
	res := Result{Kind: event.Kind(ev)}

	value, err := DecodeDataKey(ev.Payload)
	if err != nil {
		res.Outcome = Malformed
		res.Err = err
		return res
	}

	provider, ok := st.Providers[ev.Parent]
	if !ok {
		res.Outcome = Pending
		res.Err = fmt.Errorf("%w: provider %s for %s", ErrPending, ev.Parent, ev.Label)
		return res
	}
	if provider.HasNote(logID) {
		return res
	}

	if err := p.writer.UpdateFact(ctx, ev.Parent.String(), model.FactColumn(ev.Label), value); err != nil {
		return failed(res, err)
	}
	provider.AppendFact(ev.Label, value, logID)
	return res
}

func failed(res Result, err error) Result {
	res.Outcome = Failed
	res.Err = fmt.Errorf("%w: %w", ErrPersistence, err)
	return res
}

func kindFromTopic(l event.Log) string {
	if len(l.Topics) == 0 {
		return "unrecognized"
	}
	switch strings.ToLower(l.Topics[0]) {
	case hypermap.MintTopic:
		return "registration"
	case hypermap.NoteTopic:
		return "annotation"
	default:
		return "unrecognized"
	}
}
