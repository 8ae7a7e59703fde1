package capture

import (
	"fmt"
	"time"
)

// RequestPool owns the fixed set of hardware-bound requests, one per
// allocated buffer. The pool never grows: completed requests are requeued
// in place, preserving the zero-allocation steady state.
type RequestPool struct {
	dev      Device
	requests []*Request
}

// BuildPool creates one request per allocated buffer, each configured with
// the target frame duration so the device throttles capture itself.
func BuildPool(dev Device, buffers []*BufferDescriptor, frameDuration time.Duration) *RequestPool {
	requests := make([]*Request, len(buffers))
	for i, buf := range buffers {
		requests[i] = &Request{
			Buffer:        buf,
			FrameDuration: frameDuration,
		}
	}
	return &RequestPool{dev: dev, requests: requests}
}

// SubmitAll queues every request to the hardware. Called once at session
// start.
func (p *RequestPool) SubmitAll() error {
	for _, r := range p.requests {
		if err := p.queue(r); err != nil {
			return err
		}
	}
	return nil
}

// Requeue returns a consumed request to the hardware. The request must be
// in Completed state (the capture loop just processed it) or Cancelled
// (drained during shutdown and resubmission attempted before the state
// machine noticed).
func (p *RequestPool) Requeue(r *Request) error {
	r.setState(RequestIdle)
	return p.queue(r)
}

// queue hands a request to the device, guarding against double-queuing:
// submitting a request that is already queued is driver-undefined behavior,
// so the Idle→Queued transition must win first.
func (p *RequestPool) queue(r *Request) error {
	if !r.compareAndSetState(RequestIdle, RequestQueued) {
		return fmt.Errorf("%w: buffer %d is %s, not idle",
			ErrQueueRejected, r.Buffer.Index, r.State())
	}
	if err := p.dev.Queue(r); err != nil {
		r.setState(RequestIdle)
		return fmt.Errorf("%w: buffer %d: %v", ErrQueueRejected, r.Buffer.Index, err)
	}
	return nil
}

// Size returns the fixed pool size.
func (p *RequestPool) Size() int { return len(p.requests) }

// Requests exposes the pool members for state inspection.
func (p *RequestPool) Requests() []*Request { return p.requests }

// StateCounts tallies requests per lifecycle state. At every instant during
// Running the counts over {Idle, Queued, Completed} sum to the pool size.
func (p *RequestPool) StateCounts() map[RequestState]int {
	counts := make(map[RequestState]int)
	for _, r := range p.requests {
		counts[r.State()]++
	}
	return counts
}
