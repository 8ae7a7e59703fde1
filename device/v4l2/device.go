package v4l2

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/blackjack/webcam"

	"github.com/visiona/camflow/capture"
)

// pixFmtMJPEG is the V4L2 'MJPG' fourcc.
const pixFmtMJPEG webcam.PixelFormat = 0x47504A4D

// bufferCount is the fixed pool size requested from the driver.
const bufferCount = 4

// waitTimeoutSec bounds each blocking wait so the reader goroutine can
// observe shutdown.
const waitTimeoutSec = 1

// Enumerator lists V4L2 capture nodes.
type Enumerator struct {
	fps int
}

// NewEnumerator creates an enumerator. fps is applied to the device during
// negotiation so the driver throttles capture itself.
func NewEnumerator(fps int) *Enumerator {
	return &Enumerator{fps: fps}
}

// Enumerate lists /dev/video* nodes in stable order.
func (e *Enumerator) Enumerate() ([]string, error) {
	nodes, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("globbing video devices: %w", err)
	}
	sort.Strings(nodes)
	return nodes, nil
}

// Acquire opens the device node for exclusive use.
func (e *Enumerator) Acquire(id string) (capture.Device, error) {
	cam, err := webcam.Open(id)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", capture.ErrDeviceUnavailable, id, err)
	}
	return &device{id: id, fps: e.fps, cam: cam}, nil
}

// heldFrame is one driver frame on loan to a request, returned to the
// driver by Unmap.
type heldFrame struct {
	data  []byte
	index uint32
}

// device drives one V4L2 camera as a capture.Device.
type device struct {
	id  string
	fps int
	cam *webcam.Webcam

	width  int
	height int

	mu         sync.Mutex
	idle       []*capture.Request // requests queued by the session, awaiting frames
	held       []*heldFrame       // per-descriptor frame on loan, nil when unmapped
	onComplete func(*capture.Request)
	accepting  bool
	started    bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// Negotiate applies the MJPEG image format and frame rate. The driver may
// adjust the geometry; the adjusted values are returned for the session to
// adopt.
func (d *device) Negotiate(f capture.Format, width, height int) (capture.Negotiated, error) {
	if f != capture.FormatMJPEG {
		return capture.Negotiated{}, fmt.Errorf("%w: v4l2 delivers mjpeg, not %s",
			capture.ErrConfigurationInvalid, f)
	}
	if width <= 0 || height <= 0 {
		return capture.Negotiated{}, fmt.Errorf("%w: %dx%d",
			capture.ErrConfigurationInvalid, width, height)
	}

	pf, w, h, err := d.cam.SetImageFormat(pixFmtMJPEG, uint32(width), uint32(height))
	if err != nil {
		return capture.Negotiated{}, fmt.Errorf("%w: setting image format: %v",
			capture.ErrConfigurationInvalid, err)
	}
	if pf != pixFmtMJPEG {
		return capture.Negotiated{}, fmt.Errorf("%w: %s does not support MJPEG",
			capture.ErrConfigurationInvalid, d.id)
	}
	if err := d.cam.SetFramerate(float32(d.fps)); err != nil {
		// Not every driver honors frame interval control; capture still
		// works at the driver's native rate.
		slog.Warn("v4l2: frame rate not applied", "device", d.id, "fps", d.fps, "error", err)
	}

	d.width = int(w)
	d.height = int(h)
	return capture.Negotiated{Width: d.width, Height: d.height, Format: capture.FormatMJPEG}, nil
}

// AllocateBuffers sizes the driver's buffer pool and builds descriptors
// whose mappings borrow the driver's mmap regions one frame at a time.
func (d *device) AllocateBuffers() ([]*capture.BufferDescriptor, error) {
	if d.width == 0 || d.height == 0 {
		return nil, fmt.Errorf("%w: negotiate before allocating", capture.ErrAllocationFailed)
	}
	if err := d.cam.SetBufferCount(bufferCount); err != nil {
		return nil, fmt.Errorf("%w: setting buffer count: %v", capture.ErrAllocationFailed, err)
	}

	d.held = make([]*heldFrame, bufferCount)
	descs := make([]*capture.BufferDescriptor, bufferCount)
	for i := range descs {
		i := i
		descs[i] = &capture.BufferDescriptor{
			Index:  i,
			Planes: 1,
			MapFunc: func() ([]byte, error) {
				d.mu.Lock()
				defer d.mu.Unlock()
				if d.held[i] == nil {
					return nil, fmt.Errorf("v4l2: buffer %d has no frame on loan", i)
				}
				return d.held[i].data, nil
			},
			UnmapFunc: func() error {
				d.mu.Lock()
				hf := d.held[i]
				d.held[i] = nil
				cam := d.cam
				d.mu.Unlock()
				if hf == nil || cam == nil {
					return nil
				}
				return cam.ReleaseFrame(hf.index)
			},
		}
	}
	return descs, nil
}

func (d *device) OnCompletion(fn func(*capture.Request)) {
	d.mu.Lock()
	d.onComplete = fn
	d.mu.Unlock()
}

// Queue makes a request available to the reader goroutine.
func (d *device) Queue(r *capture.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.accepting && d.started {
		return fmt.Errorf("device stopping")
	}
	d.idle = append(d.idle, r)
	return nil
}

// Start begins streaming and launches the reader goroutine.
func (d *device) Start() error {
	if err := d.cam.StartStreaming(); err != nil {
		return fmt.Errorf("%w: streamon: %v", capture.ErrStartFailed, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.cancel = cancel
	d.accepting = true
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.read(ctx)

	slog.Info("v4l2: streaming", "device", d.id,
		"resolution", fmt.Sprintf("%dx%d", d.width, d.height), "fps", d.fps)
	return nil
}

// read dequeues driver frames and completes idle requests with them.
func (d *device) read(ctx context.Context) {
	defer d.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		err := d.cam.WaitForFrame(waitTimeoutSec)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			if ctx.Err() != nil {
				return
			}
			slog.Error("v4l2: wait for frame failed", "device", d.id, "error", err)
			return
		}

		data, fidx, err := d.cam.GetFrame()
		if err != nil {
			slog.Warn("v4l2: dequeue failed, skipping frame", "device", d.id, "error", err)
			continue
		}

		d.mu.Lock()
		var req *capture.Request
		if len(d.idle) > 0 {
			req = d.idle[0]
			d.idle = d.idle[1:]
		}
		fn := d.onComplete
		if req != nil {
			d.held[req.Buffer.Index] = &heldFrame{data: data, index: fidx}
		}
		d.mu.Unlock()

		if req == nil {
			// Pool starved: every buffer is still being processed.
			d.cam.ReleaseFrame(fidx)
			d.dropped.Add(1)
			slog.Debug("v4l2: dropping frame, no idle request")
			continue
		}

		req.MarkCompleted(len(data))
		if fn != nil {
			fn(req)
		}
	}
}

// Stop halts streaming and cancels requests the driver never filled.
func (d *device) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	pending := d.idle
	d.idle = nil
	fn := d.onComplete
	d.accepting = false
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	if err := d.cam.StopStreaming(); err != nil {
		return fmt.Errorf("v4l2: streamoff: %w", err)
	}

	for _, r := range pending {
		r.MarkCancelled()
		if fn != nil {
			fn(r)
		}
	}

	slog.Info("v4l2: streaming stopped", "device", d.id, "frames_dropped", d.dropped.Load())
	return nil
}

// Release closes the device node, which also unmaps every driver buffer.
func (d *device) Release() error {
	d.mu.Lock()
	cam := d.cam
	d.cam = nil
	d.held = nil
	d.mu.Unlock()

	if cam != nil {
		return cam.Close()
	}
	return nil
}
