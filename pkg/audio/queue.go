package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned by [FrameQueue.Pop] after [FrameQueue.Close].
var ErrQueueClosed = errors.New("audio: frame queue closed")

// FrameQueue is a bounded FIFO of frames between a producer and a single
// consumer. When the queue is full, Push evicts the OLDEST queued frame and
// keeps the new one: for live voice a fresh frame is always worth more than
// a stale one, and the producer must never block.
//
// FrameQueue is safe for concurrent use.
type FrameQueue struct {
	mu     sync.Mutex
	frames []Frame
	head   int
	count  int
	closed bool

	dropped atomic.Uint64

	// notify wakes a blocked Pop. Capacity 1 — a single pending wakeup is
	// enough for the single consumer.
	notify chan struct{}
}

// NewFrameQueue creates a queue holding at most depth frames. depth must be
// at least 1; smaller values are clamped.
func NewFrameQueue(depth int) *FrameQueue {
	if depth < 1 {
		depth = 1
	}
	return &FrameQueue{
		frames: make([]Frame, depth),
		notify: make(chan struct{}, 1),
	}
}

// Push enqueues f, evicting the oldest queued frame if the queue is full.
// It reports whether an eviction happened. Push never blocks. Pushing to a
// closed queue drops f and reports true.
func (q *FrameQueue) Push(f Frame) (evicted bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.dropped.Add(1)
		return true
	}
	if q.count == len(q.frames) {
		// Evict the oldest.
		q.head = (q.head + 1) % len(q.frames)
		q.count--
		q.dropped.Add(1)
		evicted = true
	}
	q.frames[(q.head+q.count)%len(q.frames)] = f
	q.count++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evicted
}

// Pop blocks until a frame is available, the queue is closed, or ctx is
// cancelled.
func (q *FrameQueue) Pop(ctx context.Context) (Frame, error) {
	for {
		if f, ok := q.TryPop(); ok {
			return f, nil
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Frame{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryPop dequeues the oldest frame without blocking.
func (q *FrameQueue) TryPop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return Frame{}, false
	}
	f := q.frames[q.head]
	q.frames[q.head] = Frame{}
	q.head = (q.head + 1) % len(q.frames)
	q.count--
	return f, true
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns the total number of frames evicted since creation.
// The counter is monotonic.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close marks the queue closed and wakes any blocked Pop. Queued frames are
// discarded. Safe to call more than once.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.count = 0
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
