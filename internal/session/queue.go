package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by Pop when no item arrived within the
	// timeout. It is a normal outcome, used by stream controllers to
	// emit keep-alives.
	ErrTimeout = errors.New("queue: pop timed out")

	// ErrConsumerActive is returned when a second consumer tries to
	// attach to, or pop from, a queue that already has one.
	ErrConsumerActive = errors.New("queue: consumer already active")
)

// DefaultQueueCapacity bounds a session's delivery queue. Overflow
// drops the oldest item rather than blocking a producer.
const DefaultQueueCapacity = 1024

// Queue is a per-session ordered buffer connecting producers (monitor,
// manual submissions) to the single stream consumer. Producers never
// block: pushes append under a lock and overflow drops the oldest
// entry. Exactly one consumer may pop at a time.
type Queue struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	dropped  uint64
	terminal Item // valid once closed
	closed   bool
	attached bool
	popping  bool

	notify chan struct{} // capacity 1, signaled on push
}

// NewQueue creates a queue bounded at capacity items. A capacity <= 0
// uses DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push appends an item in FIFO order. It never blocks. Pushing a
// control item closes the queue: the control is delivered after all
// items queued before it, and every later push is discarded.
func (q *Queue) Push(it Item) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if it.IsControl() {
		q.closed = true
		q.terminal = it
	}
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// PushEvent appends a log event.
func (q *Queue) PushEvent(e Event) {
	q.Push(Item{Event: e})
}

// PushControl appends a terminal control signal and closes the queue.
func (q *Queue) PushControl(c Control) {
	q.Push(Item{Control: c})
}

// Pop removes and returns the oldest item, blocking until one is
// available, timeout elapses (ErrTimeout), or ctx is cancelled. After
// the terminal control item has been consumed, every further Pop
// returns it again immediately. A Pop that races another in-flight
// Pop is a contract violation and fails with ErrConsumerActive.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Item, error) {
	q.mu.Lock()
	if q.popping {
		q.mu.Unlock()
		return Item{}, ErrConsumerActive
	}
	q.popping = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.popping = false
		q.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return it, nil
		}
		if q.closed {
			it := q.terminal
			q.mu.Unlock()
			return it, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-timer.C:
			return Item{}, ErrTimeout
		case <-ctx.Done():
			return Item{}, ctx.Err()
		}
	}
}

// Attach claims the queue for a stream consumer. It fails with
// ErrConsumerActive while another consumer holds the claim.
func (q *Queue) Attach() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.attached {
		return ErrConsumerActive
	}
	q.attached = true
	return nil
}

// Detach releases the consumer claim.
func (q *Queue) Detach() {
	q.mu.Lock()
	q.attached = false
	q.mu.Unlock()
}

// Attached reports whether a consumer currently holds the claim.
func (q *Queue) Attached() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.attached
}

// Len returns the number of buffered items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many items were discarded to overflow.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Closed reports whether a terminal control item has been pushed.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
