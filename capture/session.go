package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/camflow/encoder"
	"github.com/visiona/camflow/frameslot"
)

// SessionState is the session lifecycle state.
type SessionState int32

const (
	StateUninitialized SessionState = iota
	StateConfigured
	StateRunning
	StateStopping
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// idleSleep bounds the drain loop's latency to a stop signal without
// busy-spinning when no completion is pending.
const idleSleep = time.Millisecond

// SessionStats is an operational snapshot.
type SessionStats struct {
	State           SessionState
	FramesProcessed uint64
	FramesPublished uint64
	EncodeFailures  uint64
	CancelledDrops  uint64
}

// Session owns the camera resource lifecycle and drives the steady-state
// capture loop.
//
// Lifecycle: NewSession → Configure → Start → Stop. Stopped is terminal; a
// new session must be constructed to restart.
type Session struct {
	enum Enumerator
	slot frameslot.Slot

	cfg   Config // effective after Configure (negotiated values adopted)
	dev   Device
	enc   *encoder.Encoder
	queue *CompletionQueue
	pool  *RequestPool

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	idle time.Duration // drain-loop idle sleep (idleSleep; tests shorten)

	framesProcessed atomic.Uint64
	framesPublished atomic.Uint64
	encodeFailures  atomic.Uint64

	firstFrame sync.Once
}

// NewSession creates an unconfigured session publishing into slot.
func NewSession(enum Enumerator, slot frameslot.Slot) *Session {
	return &Session{
		enum: enum,
		slot: slot,
		idle: idleSleep,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// EffectiveConfig returns the configuration after negotiation. Valid once
// Configure has succeeded.
func (s *Session) EffectiveConfig() Config { return s.cfg }

// Stats returns an operational snapshot.
func (s *Session) Stats() SessionStats {
	stats := SessionStats{
		State:           s.State(),
		FramesProcessed: s.framesProcessed.Load(),
		FramesPublished: s.framesPublished.Load(),
		EncodeFailures:  s.encodeFailures.Load(),
	}
	if s.queue != nil {
		stats.CancelledDrops = s.queue.CancelledDrops()
	}
	return stats
}

// Configure validates cfg, acquires the device and negotiates the format.
// On a non-fatal adjustment the session adopts the negotiated width and
// height as the new effective values and proceeds.
//
// Transitions Uninitialized → Configured. Fails with ErrDeviceUnavailable
// if no matching device exists, ErrConfigurationInvalid if the device
// rejects the configuration outright.
func (s *Session) Configure(cfg Config) error {
	if !s.compareAndSetState(StateUninitialized, StateConfigured) {
		return fmt.Errorf("%w: Configure in state %s", ErrInvalidState, s.State())
	}

	if err := cfg.validate(); err != nil {
		s.state.Store(int32(StateUninitialized))
		return err
	}

	ids, err := s.enum.Enumerate()
	if err != nil {
		s.state.Store(int32(StateUninitialized))
		return fmt.Errorf("%w: enumerating: %v", ErrDeviceUnavailable, err)
	}
	if cfg.DeviceIndex >= len(ids) {
		s.state.Store(int32(StateUninitialized))
		return fmt.Errorf("%w: device %d not available (%d devices found)",
			ErrDeviceUnavailable, cfg.DeviceIndex, len(ids))
	}

	dev, err := s.enum.Acquire(ids[cfg.DeviceIndex])
	if err != nil {
		s.state.Store(int32(StateUninitialized))
		return err
	}

	neg, err := dev.Negotiate(cfg.Format, cfg.Width, cfg.Height)
	if err != nil {
		dev.Release()
		s.state.Store(int32(StateUninitialized))
		return err
	}

	if neg.Width != cfg.Width || neg.Height != cfg.Height {
		slog.Info("capture: configuration adjusted",
			"requested", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"negotiated", fmt.Sprintf("%dx%d", neg.Width, neg.Height),
		)
		cfg.Width = neg.Width
		cfg.Height = neg.Height
	}
	cfg.Format = neg.Format

	s.cfg = cfg
	s.dev = dev

	slog.Info("capture: device configured",
		"device", ids[cfg.DeviceIndex],
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FrameRate,
		"format", cfg.Format.String(),
	)
	return nil
}

// Start allocates buffers, builds the request pool, registers the
// completion callback, submits every initial request and spawns the capture
// loop.
//
// Transitions Configured → Running. On failure the session returns to
// Configured with the callback deregistered and no requests in flight.
func (s *Session) Start(ctx context.Context) error {
	if !s.compareAndSetState(StateConfigured, StateRunning) {
		return fmt.Errorf("%w: Start in state %s", ErrInvalidState, s.State())
	}

	buffers, err := s.dev.AllocateBuffers()
	if err != nil {
		s.state.Store(int32(StateConfigured))
		return err
	}
	if len(buffers) == 0 {
		s.state.Store(int32(StateConfigured))
		return fmt.Errorf("%w: device allocated no buffers", ErrAllocationFailed)
	}

	mode := encoder.ModeRGB24
	if s.cfg.Format == FormatMJPEG {
		mode = encoder.ModeMJPEG
	}
	enc, err := encoder.New(mode, s.cfg.Width, s.cfg.Height, s.cfg.Quality)
	if err != nil {
		s.state.Store(int32(StateConfigured))
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	s.enc = enc

	s.queue = NewCompletionQueue()
	s.pool = BuildPool(s.dev, buffers, s.cfg.FrameDuration())
	s.dev.OnCompletion(s.onCompletion)

	if err := s.dev.Start(); err != nil {
		s.dev.OnCompletion(nil)
		s.state.Store(int32(StateConfigured))
		return err
	}

	if err := s.pool.SubmitAll(); err != nil {
		s.dev.Stop()
		s.dev.OnCompletion(nil)
		s.state.Store(int32(StateConfigured))
		return fmt.Errorf("%w: submitting initial requests: %v", ErrStartFailed, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop()

	slog.Info("capture: session running",
		"pool_size", s.pool.Size(),
		"frame_duration", s.cfg.FrameDuration(),
	)
	return nil
}

// Stop halts capture and releases every resource.
//
// Transitions Running → Stopping → Stopped. Completions that arrive after
// stop begins are drained and discarded, not requeued. Idempotent from any
// post-Running state.
func (s *Session) Stop() error {
	if !s.compareAndSetState(StateRunning, StateStopping) {
		return nil
	}

	s.cancel()
	s.wg.Wait()

	if err := s.dev.Stop(); err != nil {
		slog.Warn("capture: device stop failed", "error", err)
	}
	s.dev.OnCompletion(nil)

	if drained := s.queue.Drain(); len(drained) > 0 {
		slog.Debug("capture: discarded in-flight completions", "count", len(drained))
	}

	if err := s.dev.Release(); err != nil {
		slog.Warn("capture: device release failed", "error", err)
	}
	s.slot.Close()

	s.state.Store(int32(StateStopped))
	slog.Info("capture: session stopped",
		"frames_processed", s.framesProcessed.Load(),
		"frames_published", s.framesPublished.Load(),
	)
	return nil
}

// onCompletion is the device completion callback. It runs on a foreign
// goroutine and only hands the request to the queue; all heavy work belongs
// to the capture loop.
func (s *Session) onCompletion(r *Request) {
	s.queue.Push(r)
}

// loop is the single consumer goroutine owning encode, publish and requeue.
func (s *Session) loop() {
	defer s.wg.Done()

	for {
		if s.ctx.Err() != nil {
			return
		}
		if err := s.drainOne(); err != nil {
			// Hardware state is presumed inconsistent; trigger an
			// orderly stop from outside the loop goroutine.
			slog.Error("capture: requeue failed, stopping", "error", err)
			go s.Stop()
			return
		}
	}
}

// drainOne pops at most one completed request; when none is available it
// sleeps briefly to stay responsive to the stop signal without spinning.
//
// Per-frame failures are local: the frame is skipped, the request is still
// requeued and the loop continues. A requeue failure is returned and is
// fatal to the loop.
func (s *Session) drainOne() error {
	req, ok := s.queue.TryPop()
	if !ok {
		time.Sleep(s.idle)
		return nil
	}

	s.framesProcessed.Add(1)
	s.firstFrame.Do(func() {
		slog.Debug("capture: first frame",
			"buffer", req.Buffer.Index,
			"planes", req.Buffer.Planes,
			"bytes_used", req.BytesUsed,
		)
	})

	traceID := uuid.New().String()
	data, err := s.enc.Encode(req.Buffer, req.BytesUsed)
	if err != nil {
		s.encodeFailures.Add(1)
		slog.Warn("capture: frame skipped",
			"buffer", req.Buffer.Index,
			"trace_id", traceID,
			"error", err,
		)
	} else {
		s.slot.Publish(data, time.Now())
		s.framesPublished.Add(1)
		slog.Debug("capture: frame published",
			"size_bytes", len(data),
			"trace_id", traceID,
		)
	}

	if err := s.pool.Requeue(req); err != nil {
		if st := s.State(); st == StateStopping || st == StateStopped {
			// The device refusing requests after stop has begun is
			// expected, not an anomaly.
			return nil
		}
		return err
	}
	return nil
}

func (s *Session) compareAndSetState(old, new SessionState) bool {
	return s.state.CompareAndSwap(int32(old), int32(new))
}
