// Package internal implements the frame slot.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// package.
package internal

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrSlotClosed  = errors.New("frameslot: slot is closed")
	ErrWaitTimeout = errors.New("frameslot: wait timed out")
)

// Snapshot is one published frame as seen by a reader. Data is owned by the
// reader; the slot never touches it again after returning it.
type Snapshot struct {
	Data       []byte
	Timestamp  time.Time
	Generation uint64
}

// Stats tracks publication metrics.
type Stats struct {
	// Publishes is the lifetime publish count.
	Publishes uint64
	// Drops counts frames that were overwritten before any reader
	// observed them (publish-without-read).
	Drops uint64
	// LastPublishAt is the timestamp of the most recent publish
	// (zero value if nothing published yet).
	LastPublishAt time.Time
}

// Slot is the concrete single-slot publication buffer.
//
// Locking:
//   - mu protects data/ts/gen/read/notify/closed
//   - publishes/drops are atomics so Stats never contends with readers
//
// Change notification uses a channel that is closed and replaced under the
// lock on every publish. Waiters grab the current channel, release the lock
// and select on it together with their timeout; sync.Cond cannot express
// the caller-supplied timeout WaitForNext requires.
type Slot struct {
	mu     sync.Mutex
	data   []byte
	ts     time.Time
	gen    uint64
	read   bool // current frame observed by at least one reader
	closed bool
	notify chan struct{}

	publishes atomic.Uint64
	drops     atomic.Uint64
}

// NewSlot creates an empty slot (called by the public New in the parent
// package).
func NewSlot() *Slot {
	return &Slot{notify: make(chan struct{})}
}

// Publish replaces the slot contents (implements Slot.Publish).
//
// Algorithm:
//  1. Lock
//  2. Count a drop if the previous frame was never read
//  3. Copy data into the slot's own buffer (reused across publishes)
//  4. Bump generation, stamp timestamp
//  5. Close and replace the notify channel (wakes all waiters)
//  6. Unlock
func (s *Slot) Publish(data []byte, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if s.gen > 0 && !s.read {
		s.drops.Add(1)
	}

	// Overwrite in place, reusing the backing array when large enough.
	s.data = append(s.data[:0], data...)
	s.ts = ts
	s.gen++
	s.read = false
	s.publishes.Add(1)

	close(s.notify)
	s.notify = make(chan struct{})
}

// Snapshot returns a copy of the current contents (implements Slot.Snapshot).
func (s *Slot) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen == 0 {
		return Snapshot{}, false
	}
	s.read = true
	return s.snapshotLocked(), true
}

// snapshotLocked copies the slot contents out. Caller holds mu.
func (s *Slot) snapshotLocked() Snapshot {
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return Snapshot{Data: out, Timestamp: s.ts, Generation: s.gen}
}

// WaitForNext blocks until the generation advances past lastSeen or timeout
// elapses (implements Slot.WaitForNext).
func (s *Slot) WaitForNext(lastSeen uint64, timeout time.Duration) (Snapshot, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.gen > lastSeen {
			s.read = true
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Snapshot{}, ErrSlotClosed
		}
		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ch:
			// Generation may have advanced; re-check under lock.
		case <-timer.C:
			return Snapshot{}, ErrWaitTimeout
		}
	}
}

// Stats returns a counter snapshot (implements Slot.Stats).
func (s *Slot) Stats() Stats {
	s.mu.Lock()
	last := s.ts
	s.mu.Unlock()

	return Stats{
		Publishes:     s.publishes.Load(),
		Drops:         s.drops.Load(),
		LastPublishAt: last,
	}
}

// Close marks the slot closed and wakes all waiters (implements Slot.Close).
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.notify)
	s.notify = make(chan struct{})
}
