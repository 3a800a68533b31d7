package alert

import (
	"context"
	"strconv"

	"github.com/polwex/hpn-indexer/internal/pipeline/pending"
)

// DeadLetterSink turns dropped pending logs into DEAD_LETTER alerts.
type DeadLetterSink struct {
	alerter Alerter
}

var _ pending.DeadLetterSink = (*DeadLetterSink)(nil)

func NewDeadLetterSink(a Alerter) *DeadLetterSink {
	return &DeadLetterSink{alerter: a}
}

func (s *DeadLetterSink) DeadLetter(ctx context.Context, dl pending.DeadLetter) error {
	fields := map[string]string{
		"log_id":   dl.Log.ID(),
		"attempts": strconv.Itoa(dl.Attempts),
		"waited":   dl.DroppedAt.Sub(dl.EnqueuedAt).String(),
	}
	if dl.Log.BlockNumber != nil {
		fields["block"] = strconv.FormatInt(*dl.Log.BlockNumber, 10)
	}
	return s.alerter.Send(ctx, Alert{
		Type:    AlertTypeDeadLetter,
		Title:   "Pending log dropped",
		Message: "A log stayed unresolved after every retry and was discarded.",
		Fields:  fields,
	})
}
