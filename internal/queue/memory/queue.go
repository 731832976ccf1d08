// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// Queue is a bounded in-memory seat-request queue. Enqueue rejects eagerly
// when the buffer is full: seat submission is interactive, so the caller
// gets an immediate answer instead of a handler parked on a full channel.
type Queue struct {
	ch      chan pilot.SeatRequest
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan pilot.SeatRequest, capacity),
	}
}

// Enqueue pushes a seat request into the queue. It returns
// pilot.ErrQueueFull when the buffer has no room and pilot.ErrQueueClosed
// after Close.
func (q *Queue) Enqueue(ctx context.Context, req pilot.SeatRequest) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}

	// The lock keeps the send from racing a concurrent Close.
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return pilot.ErrQueueClosed
	}
	select {
	case q.ch <- req:
		return nil
	default:
		return pilot.ErrQueueFull
	}
}

// Dequeue pops the next seat request, blocking until one arrives, the queue
// closes, or the context ends.
func (q *Queue) Dequeue(ctx context.Context) (pilot.SeatRequest, error) {
	select {
	case <-ctx.Done():
		return pilot.SeatRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return pilot.SeatRequest{}, pilot.ErrQueueClosed
		}
		return req, nil
	}
}

// Len reports how many requests are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close shuts the queue down. Waiting Dequeue calls drain the remaining
// requests and then observe pilot.ErrQueueClosed.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
