package chopin

import (
	"sync"
	"time"

	"github.com/chopinframework/chopd/internal/metrics"
)

// SlotQueue is the single-slot serialization primitive: at most one
// mutating request is ever being forwarded to the target at a time, and
// waiters are released strictly FIFO.
//
// SlotQueue has exactly one slot and no capacity limit — every mutating
// request eventually runs, in arrival order, with no barge-in and no
// cancellation of waiters. It reports queue depth and wait-time via
// internal/metrics for observability.
type SlotQueue struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan struct{}
}

// NewSlotQueue returns an empty, unlocked queue.
func NewSlotQueue() *SlotQueue {
	return &SlotQueue{}
}

// Acquire blocks until the caller holds the slot, then returns a release
// function. Admission and FIFO release are both guarded by the same
// mutex, so "dispatch order == admission order" holds even under heavy
// concurrent enqueueing.
func (q *SlotQueue) Acquire() func() {
	start := time.Now()
	q.mu.Lock()
	if !q.inFlight {
		q.inFlight = true
		q.mu.Unlock()
		metrics.QueueWaitObserve(time.Since(start))
		return q.release
	}
	waiter := make(chan struct{})
	q.waiters = append(q.waiters, waiter)
	metrics.QueueDepthSet(int64(len(q.waiters)))
	q.mu.Unlock()

	<-waiter
	metrics.QueueWaitObserve(time.Since(start))
	return q.release
}

// release hands the slot to the next waiter (if any) or marks the slot
// free. It is always invoked exactly once per Acquire, on every exit path
// of the queued-request handler (success, transport error, panic
// recovery, or body-size rejection), so the slot is never stuck held.
func (q *SlotQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) > 0 {
		next := q.waiters[0]
		q.waiters = q.waiters[1:]
		metrics.QueueDepthSet(int64(len(q.waiters)))
		close(next)
		return
	}
	q.inFlight = false
}
