package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded event queue. It is the only cross-goroutine handoff in
// the system: live adapters produce into per-source queues, and the feed
// merge consumes them on the owner goroutine.
//
// The backpressure policy is to block the producer rather than drop;
// dropping would break the ordering guarantee of the downstream merge.
type Queue struct {
	ch     chan Message
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Message, capacity)}
}

// Publish enqueues a message, blocking while the queue is full.
func (q *Queue) Publish(ctx context.Context, m Message) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues a message without blocking.
func (q *Queue) TryPublish(m Message) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// TryPop removes the next message without blocking.
func (q *Queue) TryPop() (Message, bool) {
	select {
	case m, ok := <-q.ch:
		if !ok {
			return Message{}, false
		}
		return m, true
	default:
		return Message{}, false
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new messages. Queued messages remain
// readable so shutdown can drain them.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Closed reports whether the queue has been closed.
func (q *Queue) Closed() bool {
	return atomic.LoadUint32(&q.closed) != 0
}

// Run consumes messages until the context is done or the queue is closed
// and drained.
func (q *Queue) Run(ctx context.Context, handler func(Message)) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-q.ch:
			if !ok {
				return
			}
			handler(m)
		}
	}
}
