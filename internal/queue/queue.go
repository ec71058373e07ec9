// Package queue provides the ingestion buffer between producers and
// the flush engine.
//
// The queue is unbounded: the batch size and flush interval are the
// backpressure knobs, and the flush engine's drop policy bounds memory
// when the collection endpoint stays unreachable.
package queue

import (
	"sync"

	"github.com/trusera/trusera-go/internal/event"
)

// Queue is a thread-safe FIFO buffer of events. Any number of
// producers may Push concurrently; the flush engine is the only
// drainer.
type Queue struct {
	mu     sync.Mutex
	events []event.Event
	notify chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends an event. It never blocks and never fails; producers
// must not observe errors from the ingestion path.
func (q *Queue) Push(ev event.Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()

	// Coalescing wakeup for the background flush loop.
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain atomically removes and returns up to maxN events in FIFO
// order. maxN <= 0 drains everything.
func (q *Queue) Drain(maxN int) []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.events)
	if n == 0 {
		return nil
	}
	if maxN > 0 && maxN < n {
		n = maxN
	}

	batch := make([]event.Event, n)
	copy(batch, q.events[:n])
	remaining := copy(q.events, q.events[n:])
	q.events = q.events[:remaining]
	return batch
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Notify returns a channel that receives a coalesced signal after each
// Push. The flush engine uses it to notice size-triggered flushes
// without polling.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
