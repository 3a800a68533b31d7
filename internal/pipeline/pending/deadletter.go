package pending

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/polwex/hpn-indexer/internal/domain/event"
)

// DeadLetter is an entry dropped after exhausting its retry cycles.
type DeadLetter struct {
	Log        event.Log
	Attempts   int
	EnqueuedAt time.Time
	DroppedAt  time.Time
}

// DeadLetterSink observes dropped entries.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl DeadLetter) error
}

// LogSink writes dead letters to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) DeadLetter(_ context.Context, dl DeadLetter) error {
	attrs := []any{
		"log_id", dl.Log.ID(),
		"attempts", dl.Attempts,
		"waited", dl.DroppedAt.Sub(dl.EnqueuedAt).String(),
	}
	if len(dl.Log.Topics) > 0 {
		attrs = append(attrs, "topic0", dl.Log.Topics[0])
	}
	if dl.Log.BlockNumber != nil {
		attrs = append(attrs, "block", *dl.Log.BlockNumber)
	}
	s.logger.Warn("pending log dropped", attrs...)
	return nil
}

// Publisher appends a record to a named stream.
type Publisher interface {
	Publish(ctx context.Context, stream string, values map[string]any) (string, error)
}

// StreamSink publishes dead letters to a stream (Redis XADD) so they can be
// inspected or replayed.
type StreamSink struct {
	publisher Publisher
	stream    string
}

func NewStreamSink(publisher Publisher, stream string) *StreamSink {
	return &StreamSink{publisher: publisher, stream: stream}
}

func (s *StreamSink) DeadLetter(ctx context.Context, dl DeadLetter) error {
	if _, err := s.publisher.Publish(ctx, s.stream, StreamValues(dl)); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

// StreamValues flattens a dead letter into stream fields.
func StreamValues(dl DeadLetter) map[string]any {
	block := ""
	if dl.Log.BlockNumber != nil {
		block = strconv.FormatInt(*dl.Log.BlockNumber, 10)
	}
	return map[string]any{
		"log_id":      dl.Log.ID(),
		"address":     dl.Log.Address,
		"topics":      strings.Join(dl.Log.Topics, ","),
		"data":        "0x" + hex.EncodeToString(dl.Log.Data),
		"block":       block,
		"attempts":    dl.Attempts,
		"enqueued_at": dl.EnqueuedAt.Unix(),
		"dropped_at":  dl.DroppedAt.Unix(),
	}
}

// MultiSink fans a dead letter out to every sink.
type MultiSink []DeadLetterSink

func (m MultiSink) DeadLetter(ctx context.Context, dl DeadLetter) error {
	var errs []error
	for _, s := range m {
		if err := s.DeadLetter(ctx, dl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
