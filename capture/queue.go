package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// CompletionQueue decouples the device's asynchronous completion callback
// (producer, foreign goroutine) from the capture loop (single consumer).
//
// A mutex-guarded slice suffices: push and pop are both O(1) amortized and
// the lock is held only for the append or slice advance. FIFO order bounds
// per-frame staleness (oldest completion is consumed first).
type CompletionQueue struct {
	mu      sync.Mutex
	pending []*Request

	cancelledDrops atomic.Uint64
}

// NewCompletionQueue creates an empty queue.
func NewCompletionQueue() *CompletionQueue {
	return &CompletionQueue{}
}

// Push appends a completed request. Called from the completion callback
// context; fast and non-blocking beyond the lock acquire.
//
// Requests the device layer cancelled are dropped with a note, not an
// error: cancellation happens during shutdown races and is expected.
func (q *CompletionQueue) Push(r *Request) {
	if r.State() == RequestCancelled {
		q.cancelledDrops.Add(1)
		slog.Debug("capture: dropping cancelled request", "buffer", r.Buffer.Index)
		return
	}

	q.mu.Lock()
	q.pending = append(q.pending, r)
	q.mu.Unlock()
}

// TryPop removes and returns the oldest completed request. Called only by
// the capture loop; never blocks.
func (q *CompletionQueue) TryPop() (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}
	r := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return r, true
}

// Drain removes and returns everything pending. Used during the Stopping
// transition to discard completions that arrived after stop began.
func (q *CompletionQueue) Drain() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.pending
	q.pending = nil
	return out
}

// Len reports the number of pending completions.
func (q *CompletionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// CancelledDrops reports how many cancelled requests were dropped at push.
func (q *CompletionQueue) CancelledDrops() uint64 {
	return q.cancelledDrops.Load()
}
