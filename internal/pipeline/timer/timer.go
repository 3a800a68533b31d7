package timer

import (
	"context"
	"sync"
	"time"

	"github.com/polwex/hpn-indexer/internal/domain/event"
)

// Tags used by the pipeline.
const (
	TagRetry      = "retry"
	TagCheckpoint = "checkpoint"
)

// Scheduler arms one-shot timers that deliver event.TimerFired into an inbox.
type Scheduler struct {
	ctx   context.Context
	inbox chan<- event.Message

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

// New returns a scheduler posting into inbox until ctx is done.
func New(ctx context.Context, inbox chan<- event.Message) *Scheduler {
	return &Scheduler{
		ctx:    ctx,
		inbox:  inbox,
		timers: make(map[*time.Timer]struct{}),
	}
}

// After delivers TimerFired{Tag: tag} once d has elapsed.
func (s *Scheduler) After(d time.Duration, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		select {
		case s.inbox <- event.TimerFired{Tag: tag}:
		case <-s.ctx.Done():
		}
	})
	s.timers[t] = struct{}{}
}

// Pending returns the number of armed timers that have not fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}
