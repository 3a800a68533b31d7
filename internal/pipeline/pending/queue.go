package pending

import (
	"sync"
	"time"

	"github.com/polwex/hpn-indexer/internal/domain/event"
)

// Entry is a log waiting for a dependency, with the number of retry cycles
// it has already been through.
type Entry struct {
	Log        event.Log
	Attempts   int
	EnqueuedAt time.Time
}

// Queue holds pending entries in arrival order.
type Queue interface {
	Push(e Entry)
	// Drain removes and returns every entry in order.
	Drain() []Entry
	Len() int
	Clear()
}

// ListQueue is a slice-backed Queue.
type ListQueue struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Queue = (*ListQueue)(nil)

func NewListQueue() *ListQueue {
	return &ListQueue{}
}

func (q *ListQueue) Push(e Entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.mu.Unlock()
}

func (q *ListQueue) Drain() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}

func (q *ListQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *ListQueue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.mu.Unlock()
}
