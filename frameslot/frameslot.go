package frameslot

import (
	"time"

	"github.com/visiona/camflow/frameslot/internal"
)

// Snapshot is re-exported from the internal package to avoid import cycles.
// See internal/slot.go for full documentation.
type Snapshot = internal.Snapshot

// Stats is re-exported from the internal package to avoid import cycles.
// See internal/slot.go for full documentation.
type Stats = internal.Stats

// Errors returned by WaitForNext.
var (
	ErrSlotClosed  = internal.ErrSlotClosed
	ErrWaitTimeout = internal.ErrWaitTimeout
)

// Slot is the public interface of the publication buffer.
//
// Concurrency model:
//   - Publish: single writer (the capture loop)
//   - Snapshot/WaitForNext: any number of reader goroutines
//   - Readers never observe a partially written frame and never block
//     the writer (copy-on-read)
type Slot interface {
	// Publish replaces the slot contents with a copy of data, stamps it
	// with ts and increments the generation counter, waking all waiters.
	//
	// Semantics:
	//   - O(copy) time, never blocks waiting on a reader
	//   - A frame published over an unread frame counts as a drop
	//   - No-op after Close
	//
	// Contract: data may be reused by the caller after Publish returns
	// (the slot keeps its own copy).
	Publish(data []byte, ts time.Time)

	// Snapshot returns a copy of the current contents immediately.
	// ok is false if nothing has been published yet.
	Snapshot() (snap Snapshot, ok bool)

	// WaitForNext blocks until the generation counter advances strictly
	// past lastSeen or timeout elapses.
	//
	// Returns:
	//   - the new snapshot on success
	//   - ErrWaitTimeout if no publish happened within timeout
	//   - ErrSlotClosed if the slot was closed and no newer frame exists
	//
	// Called with the current generation and no further publish, it times
	// out without returning stale data.
	WaitForNext(lastSeen uint64, timeout time.Duration) (Snapshot, error)

	// Stats returns operational counters (non-blocking snapshot).
	Stats() Stats

	// Close tears the slot down. Waiters are woken and receive
	// ErrSlotClosed; the last published frame stays readable via
	// Snapshot. Idempotent.
	Close()
}

// New creates an empty slot.
//
// Lifecycle:
//  1. slot := frameslot.New()
//  2. producer calls Publish per frame
//  3. readers call Snapshot or WaitForNext
//  4. Close at session teardown
func New() Slot {
	return internal.NewSlot()
}
