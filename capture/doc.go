// Package capture drives a camera device through an asynchronous
// request/completion protocol and publishes each captured frame as a JPEG
// to a frameslot.Slot.
//
// Two threads of control exist:
//
//   - the device's completion callback, invoked from a driver context. It
//     must never be blocked for more than a lock acquire, so it only pushes
//     the completed request into the CompletionQueue.
//   - the single capture-loop goroutine owned by Session, which pops
//     completions, encodes, publishes and requeues. No other goroutine
//     touches RequestPool or encoder state.
//
// The request lifecycle is allocate → queue → await hardware completion →
// consume → requeue, over a fixed pool of zero-copy buffers. A request is
// queued to hardware at most once at any time; after completion it is
// either requeued or the session is stopping. It is never silently dropped
// and never queued twice.
package capture
