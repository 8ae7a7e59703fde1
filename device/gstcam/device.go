package gstcam

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/visiona/camflow/capture"
)

// bufferCount is the fixed pool size, matching the typical camera stack
// allocation.
const bufferCount = 4

// Enumerator lists libcamera devices reachable through GStreamer.
type Enumerator struct {
	fps int
}

// NewEnumerator creates an enumerator. fps is carried into the pipeline
// caps so the source throttles capture itself.
func NewEnumerator(fps int) *Enumerator {
	return &Enumerator{fps: fps}
}

// Enumerate lists camera identifiers. libcamerasrc selects cameras by
// index through the camera-name property; a single default entry is
// reported when the element exists at all.
func (e *Enumerator) Enumerate() ([]string, error) {
	gst.Init(nil)
	if _, err := gst.NewElement("libcamerasrc"); err != nil {
		return nil, fmt.Errorf("libcamerasrc not available: %w", err)
	}
	return []string{"libcamera:0"}, nil
}

// Acquire builds an unstarted device for id.
func (e *Enumerator) Acquire(id string) (capture.Device, error) {
	gst.Init(nil)
	return &device{id: id, fps: e.fps}, nil
}

// device drives one GStreamer pipeline as a capture.Device.
type device struct {
	id  string
	fps int

	width  int
	height int

	pipeline *gst.Pipeline
	sink     *app.Sink

	mu         sync.Mutex
	idle       []*capture.Request // requests queued by the session, awaiting samples
	onComplete func(*capture.Request)
	accepting  bool

	backing [][]byte
	dropped atomic.Uint64
}

// Negotiate records the requested geometry. The capsfilter forces the exact
// resolution (videoconvert/videoscale satisfy it), so the negotiated values
// equal the requested ones.
func (d *device) Negotiate(f capture.Format, width, height int) (capture.Negotiated, error) {
	if f != capture.FormatRGB24 {
		return capture.Negotiated{}, fmt.Errorf("%w: gstcam delivers rgb24, not %s",
			capture.ErrConfigurationInvalid, f)
	}
	if width <= 0 || height <= 0 {
		return capture.Negotiated{}, fmt.Errorf("%w: %dx%d",
			capture.ErrConfigurationInvalid, width, height)
	}
	d.width = width
	d.height = height
	return capture.Negotiated{Width: width, Height: height, Format: capture.FormatRGB24}, nil
}

// AllocateBuffers creates the fixed per-request frame buffers the sample
// callback copies into.
func (d *device) AllocateBuffers() ([]*capture.BufferDescriptor, error) {
	if d.width == 0 || d.height == 0 {
		return nil, fmt.Errorf("%w: negotiate before allocating", capture.ErrAllocationFailed)
	}

	planeLen := d.width * d.height * 3
	d.backing = make([][]byte, bufferCount)
	descs := make([]*capture.BufferDescriptor, bufferCount)
	for i := range descs {
		i := i
		d.backing[i] = make([]byte, planeLen)
		descs[i] = &capture.BufferDescriptor{
			Index:     i,
			Length:    planeLen,
			Planes:    1,
			MapFunc:   func() ([]byte, error) { return d.backing[i], nil },
			UnmapFunc: func() error { return nil },
		}
	}
	return descs, nil
}

func (d *device) OnCompletion(fn func(*capture.Request)) {
	d.mu.Lock()
	d.onComplete = fn
	d.mu.Unlock()
}

// Queue makes a request available to the sample callback.
func (d *device) Queue(r *capture.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.accepting && d.pipeline != nil {
		return fmt.Errorf("device stopping")
	}
	d.idle = append(d.idle, r)
	return nil
}

// Start builds and plays the pipeline.
func (d *device) Start() error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("%w: creating pipeline: %v", capture.ErrStartFailed, err)
	}

	src, err := gst.NewElement("libcamerasrc")
	if err != nil {
		return fmt.Errorf("%w: creating libcamerasrc: %v", capture.ErrStartFailed, err)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("%w: creating videoconvert: %v", capture.ErrStartFailed, err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("%w: creating capsfilter: %v", capture.ErrStartFailed, err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d,framerate=%d/1",
		d.width, d.height, d.fps)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("%w: creating appsink: %v", capture.ErrStartFailed, err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("%w: linking pipeline: %v", capture.ErrStartFailed, err)
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("%w: playing pipeline: %v", capture.ErrStartFailed, err)
	}

	d.mu.Lock()
	d.pipeline = pipeline
	d.sink = appsink
	d.accepting = true
	d.mu.Unlock()

	slog.Info("gstcam: pipeline playing", "caps", capsStr)
	return nil
}

// onNewSample adapts one appsink sample into a request completion.
func (d *device) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// A single missing sample should not kill the pipeline.
		slog.Warn("gstcam: failed to pull sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstcam: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstcam: empty buffer received")
		return gst.FlowOK
	}

	d.mu.Lock()
	var req *capture.Request
	if len(d.idle) > 0 {
		req = d.idle[0]
		d.idle = d.idle[1:]
	}
	fn := d.onComplete
	d.mu.Unlock()

	if req == nil {
		// Pool starved: every buffer is still being processed.
		buffer.Unmap()
		d.dropped.Add(1)
		slog.Debug("gstcam: dropping sample, no idle request")
		return gst.FlowOK
	}

	n := copy(d.backing[req.Buffer.Index], data)
	buffer.Unmap()

	req.MarkCompleted(n)
	if fn != nil {
		fn(req)
	}
	return gst.FlowOK
}

// Stop halts the pipeline and cancels requests the hardware never filled.
func (d *device) Stop() error {
	d.mu.Lock()
	pipeline := d.pipeline
	pending := d.idle
	d.idle = nil
	fn := d.onComplete
	d.accepting = false
	d.mu.Unlock()

	if pipeline != nil {
		if err := pipeline.SetState(gst.StateNull); err != nil {
			return fmt.Errorf("gstcam: stopping pipeline: %w", err)
		}
	}

	for _, r := range pending {
		r.MarkCancelled()
		if fn != nil {
			fn(r)
		}
	}

	slog.Info("gstcam: pipeline stopped", "samples_dropped", d.dropped.Load())
	return nil
}

// Release drops the pipeline references. The NULL state transition in Stop
// already freed the GStreamer resources.
func (d *device) Release() error {
	d.mu.Lock()
	d.pipeline = nil
	d.sink = nil
	d.backing = nil
	d.mu.Unlock()
	return nil
}
