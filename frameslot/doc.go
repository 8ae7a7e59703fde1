// Package frameslot implements a single-slot, overwrite-on-write frame
// publication buffer with change notification.
//
// Philosophy: "Latest frame wins. A slow reader never back-pressures the
// producer."
//
// Design:
//   - Publish() replaces the slot contents under a short-held lock
//   - Snapshot() returns an immediate copy (never blocks)
//   - WaitForNext() blocks until the generation counter advances or a
//     caller-supplied timeout elapses
//   - Generation counter enables change detection without content comparison
package frameslot
