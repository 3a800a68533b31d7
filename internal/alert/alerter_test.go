package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polwex/hpn-indexer/internal/domain/event"
	"github.com/polwex/hpn-indexer/internal/pipeline/pending"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() Alert {
	return Alert{
		Type:    AlertTypeUnhealthy,
		Title:   "Pipeline unhealthy",
		Message: "checkpoint failed 5 times in a row",
		Fields: map[string]string{
			"cursor": "27270500",
		},
	}
}

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &n
}

func TestMultiAlerter_Send_AllChannels(t *testing.T) {
	slackSrv, slackHits := countingServer(t, http.StatusOK)
	webhookSrv, webhookHits := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewSlackAlerter(slackSrv.URL), NewWebhookAlerter(webhookSrv.URL))
	require.NoError(t, multi.Send(context.Background(), testAlert()))

	assert.Equal(t, int32(1), slackHits.Load())
	assert.Equal(t, int32(1), webhookHits.Load())
	assert.Equal(t, 2, multi.Len())
}

func TestMultiAlerter_CooldownDedup(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK)
	multi := NewMultiAlerter(time.Minute, testLogger(), NewWebhookAlerter(srv.URL))

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	multi.nowFn = func() time.Time { return now }

	require.NoError(t, multi.Send(context.Background(), testAlert()))
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(1), hits.Load(), "second send within cooldown is suppressed")

	other := testAlert()
	other.Type = AlertTypeRecovery
	require.NoError(t, multi.Send(context.Background(), other))
	assert.Equal(t, int32(2), hits.Load(), "a different type is not suppressed")

	now = now.Add(time.Minute + time.Second)
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Equal(t, int32(3), hits.Load(), "sent again after cooldown")
}

func TestMultiAlerter_PartialFailure(t *testing.T) {
	failSrv, _ := countingServer(t, http.StatusInternalServerError)
	goodSrv, goodHits := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewWebhookAlerter(failSrv.URL), NewWebhookAlerter(goodSrv.URL))

	err := multi.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(1), goodHits.Load())
}

func captureServer(t *testing.T) (*httptest.Server, func() []byte) {
	t.Helper()
	var (
		mu   sync.Mutex
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = b
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []byte {
		mu.Lock()
		defer mu.Unlock()
		return body
	}
}

func TestSlackAlerter_PayloadFormat(t *testing.T) {
	srv, body := captureServer(t)

	alert := Alert{
		Type:    AlertTypeReset,
		Title:   "Index reset",
		Message: "Re-indexing from block 27270000",
		Fields:  map[string]string{"b": "2", "a": "1"},
	}
	require.NoError(t, NewSlackAlerter(srv.URL).Send(context.Background(), alert))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(body(), &payload))
	text := payload["text"]
	assert.Contains(t, text, ":arrows_counterclockwise:")
	assert.Contains(t, text, "[RESET]")
	assert.Contains(t, text, "Index reset")
	assert.Contains(t, text, "Re-indexing from block 27270000")
	assert.Contains(t, text, "- *a*: 1\n- *b*: 2\n", "fields are sorted by key")
}

func TestSlackEmoji(t *testing.T) {
	assert.Equal(t, ":warning:", slackEmoji(AlertTypeUnhealthy))
	assert.Equal(t, ":white_check_mark:", slackEmoji(AlertTypeRecovery))
	assert.Equal(t, ":wastebasket:", slackEmoji(AlertTypeDeadLetter))
}

func TestWebhookAlerter_PayloadFormat(t *testing.T) {
	srv, body := captureServer(t)

	w := NewWebhookAlerter(srv.URL)
	w.nowFn = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, w.Send(context.Background(), testAlert()))

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal(body(), &payload))
	assert.Equal(t, WebhookPayload{
		Service: "hpn-indexer",
		Type:    "UNHEALTHY",
		Title:   "Pipeline unhealthy",
		Message: "checkpoint failed 5 times in a row",
		Fields:  map[string]string{"cursor": "27270500"},
		Time:    "2026-05-01T12:00:00Z",
	}, payload)
}

type recordingAlerter struct {
	alerts []Alert
}

func (r *recordingAlerter) Send(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return nil
}

func TestDeadLetterSink_SendsAlert(t *testing.T) {
	rec := &recordingAlerter{}
	block := int64(27_270_042)
	enqueued := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	err := NewDeadLetterSink(rec).DeadLetter(context.Background(), pending.DeadLetter{
		Log:        event.Log{BlockNumber: &block, TxHash: "0xabc", LogIndex: 3},
		Attempts:   3,
		EnqueuedAt: enqueued,
		DroppedAt:  enqueued.Add(15 * time.Second),
	})
	require.NoError(t, err)
	require.Len(t, rec.alerts, 1)

	a := rec.alerts[0]
	assert.Equal(t, AlertTypeDeadLetter, a.Type)
	assert.Equal(t, "3", a.Fields["attempts"])
	assert.Equal(t, "27270042", a.Fields["block"])
	assert.Equal(t, "15s", a.Fields["waited"])
	assert.Equal(t, "0xabc:3", a.Fields["log_id"])
}

func TestNoopAlerter(t *testing.T) {
	assert.NoError(t, NoopAlerter{}.Send(context.Background(), testAlert()))
}
