package capture

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Format identifies the pixel format a device delivers.
type Format int

const (
	// FormatRGB24 is raw interleaved 3-byte pixels, software-encoded to
	// JPEG by the session.
	FormatRGB24 Format = iota
	// FormatMJPEG is device-native JPEG, passed through after validation.
	FormatMJPEG
)

func (f Format) String() string {
	switch f {
	case FormatRGB24:
		return "rgb24"
	case FormatMJPEG:
		return "mjpeg"
	default:
		return "unknown"
	}
}

// Config is the capture configuration. Immutable once applied; the
// negotiated values adopted during Configure become the effective
// configuration.
type Config struct {
	Width       int
	Height      int
	FrameRate   int
	Quality     int // JPEG quality 1-100, software-encode path only
	DeviceIndex int
	Format      Format
}

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: resolution %dx%d", ErrConfigurationInvalid, c.Width, c.Height)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate %d", ErrConfigurationInvalid, c.FrameRate)
	}
	if c.Format == FormatRGB24 && (c.Quality < 1 || c.Quality > 100) {
		return fmt.Errorf("%w: JPEG quality %d", ErrConfigurationInvalid, c.Quality)
	}
	if c.DeviceIndex < 0 {
		return fmt.Errorf("%w: device index %d", ErrConfigurationInvalid, c.DeviceIndex)
	}
	return nil
}

// FrameDuration derives the per-frame capture duration handed to the device
// so hardware throttles to the requested rate itself (1,000,000 µs / fps).
func (c Config) FrameDuration() time.Duration {
	return time.Duration(1000000/c.FrameRate) * time.Microsecond
}

// Negotiated is the device's answer to a configuration request. Width and
// height may differ from the requested values; the session adopts them.
type Negotiated struct {
	Width  int
	Height int
	Format Format
}

// BufferDescriptor is one zero-copy memory region shared with the device
// for the lifetime of the session. The mapping obtained via Map is borrowed
// and scoped to one frame's processing; it is released on every path and
// never retained across requeue.
type BufferDescriptor struct {
	// Index identifies the buffer within the device's allocation.
	Index int
	// Length is the allocated byte length (hardware buffers are
	// over-allocated; see Request.BytesUsed for the valid prefix).
	Length int
	// Planes is the number of contiguous memory regions in the buffer.
	// The formats handled here use exactly one.
	Planes int

	// MapFunc and UnmapFunc are supplied by the device adapter owning the
	// underlying memory.
	MapFunc   func() ([]byte, error)
	UnmapFunc func() error
}

// Map establishes the scoped mapping. Implements encoder.Plane.
func (d *BufferDescriptor) Map() ([]byte, error) {
	if d.MapFunc == nil {
		return nil, fmt.Errorf("capture: buffer %d has no mapping", d.Index)
	}
	return d.MapFunc()
}

// Unmap releases the scoped mapping. Implements encoder.Plane.
func (d *BufferDescriptor) Unmap() error {
	if d.UnmapFunc == nil {
		return nil
	}
	return d.UnmapFunc()
}

// PlaneCount implements encoder.Plane.
func (d *BufferDescriptor) PlaneCount() int { return d.Planes }

// RequestState is the lifecycle state of a capture request.
type RequestState int32

const (
	RequestIdle RequestState = iota
	RequestQueued
	RequestCompleted
	RequestCancelled
)

func (s RequestState) String() string {
	switch s {
	case RequestIdle:
		return "idle"
	case RequestQueued:
		return "queued"
	case RequestCompleted:
		return "completed"
	case RequestCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request pairs one buffer with capture parameters. Completion is
// asynchronous: the device marks the request completed (or cancelled) and
// hands it to the registered completion callback.
//
// State is atomic because the device callback and the capture loop touch it
// from different goroutines.
type Request struct {
	Buffer *BufferDescriptor

	// FrameDuration asks the device to throttle capture to the requested
	// cadence.
	FrameDuration time.Duration

	// BytesUsed is the device-reported count of valid bytes within the
	// buffer for this completion. Written by the device before the
	// completion callback runs, read by the capture loop after popping
	// the completion (the queue's lock orders the two).
	BytesUsed int

	state atomic.Int32
}

// State returns the current lifecycle state.
func (r *Request) State() RequestState {
	return RequestState(r.state.Load())
}

// MarkCompleted records a successful hardware completion. Called by device
// adapters before invoking the completion callback.
func (r *Request) MarkCompleted(bytesUsed int) {
	r.BytesUsed = bytesUsed
	r.state.Store(int32(RequestCompleted))
}

// MarkCancelled records a cancellation. Cancellation happens during
// shutdown races and is expected, not a failure.
func (r *Request) MarkCancelled() {
	r.state.Store(int32(RequestCancelled))
}

func (r *Request) setState(s RequestState) {
	r.state.Store(int32(s))
}

// compareAndSetState transitions from old to new atomically, reporting
// whether the transition happened.
func (r *Request) compareAndSetState(old, new RequestState) bool {
	return r.state.CompareAndSwap(int32(old), int32(new))
}
