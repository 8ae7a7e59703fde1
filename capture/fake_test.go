package capture

import (
	"fmt"
	"sync"
)

// fakeDevice implements Device over in-memory buffers for session tests.
type fakeDevice struct {
	mu         sync.Mutex
	onComplete func(*Request)
	queued     []*Request
	inFlight   map[*Request]bool // double-queue detection
	backing    [][]byte

	bufCount int
	planeLen int
	planes   int

	adjustTo   *Negotiated
	negotiated Negotiated

	failAlloc    bool
	failStart    bool
	queueErr     error
	rejectQueues bool

	started  bool
	stopped  bool
	released bool
}

func newFakeDevice(bufCount, planeLen int) *fakeDevice {
	return &fakeDevice{
		bufCount: bufCount,
		planeLen: planeLen,
		planes:   1,
		inFlight: make(map[*Request]bool),
	}
}

func (d *fakeDevice) Negotiate(f Format, width, height int) (Negotiated, error) {
	if d.adjustTo != nil {
		d.negotiated = *d.adjustTo
	} else {
		d.negotiated = Negotiated{Width: width, Height: height, Format: f}
	}
	return d.negotiated, nil
}

func (d *fakeDevice) AllocateBuffers() ([]*BufferDescriptor, error) {
	if d.failAlloc {
		return nil, fmt.Errorf("%w: simulated", ErrAllocationFailed)
	}
	d.backing = make([][]byte, d.bufCount)
	descs := make([]*BufferDescriptor, d.bufCount)
	for i := range descs {
		i := i
		d.backing[i] = make([]byte, d.planeLen)
		descs[i] = &BufferDescriptor{
			Index:     i,
			Length:    d.planeLen,
			Planes:    d.planes,
			MapFunc:   func() ([]byte, error) { return d.backing[i], nil },
			UnmapFunc: func() error { return nil },
		}
	}
	return descs, nil
}

func (d *fakeDevice) OnCompletion(fn func(*Request)) {
	d.mu.Lock()
	d.onComplete = fn
	d.mu.Unlock()
}

func (d *fakeDevice) Queue(r *Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queueErr != nil {
		return d.queueErr
	}
	if d.rejectQueues {
		return fmt.Errorf("device stopping")
	}
	if d.inFlight[r] {
		return fmt.Errorf("buffer %d queued twice", r.Buffer.Index)
	}
	d.inFlight[r] = true
	d.queued = append(d.queued, r)
	return nil
}

func (d *fakeDevice) Start() error {
	if d.failStart {
		return fmt.Errorf("%w: simulated", ErrStartFailed)
	}
	d.started = true
	return nil
}

// Stop cancels every in-flight request through the completion callback,
// mirroring real driver shutdown behavior.
func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	pending := d.queued
	d.queued = nil
	for _, r := range pending {
		delete(d.inFlight, r)
	}
	fn := d.onComplete
	d.stopped = true
	d.rejectQueues = true
	d.mu.Unlock()

	for _, r := range pending {
		r.MarkCancelled()
		if fn != nil {
			fn(r)
		}
	}
	return nil
}

func (d *fakeDevice) Release() error {
	d.released = true
	return nil
}

// complete pops the oldest queued request, fills its buffer and delivers
// the completion, as the driver would.
func (d *fakeDevice) complete(fill []byte, bytesUsed int) error {
	d.mu.Lock()
	if len(d.queued) == 0 {
		d.mu.Unlock()
		return fmt.Errorf("no queued request")
	}
	r := d.queued[0]
	d.queued = d.queued[1:]
	delete(d.inFlight, r)
	copy(d.backing[r.Buffer.Index], fill)
	fn := d.onComplete
	d.mu.Unlock()

	r.MarkCompleted(bytesUsed)
	if fn != nil {
		fn(r)
	}
	return nil
}

func (d *fakeDevice) queuedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queued)
}

// fakeEnumerator exposes a single fake device.
type fakeEnumerator struct {
	dev        *fakeDevice
	ids        []string
	enumErr    error
	acquireErr error
}

func newFakeEnumerator(dev *fakeDevice) *fakeEnumerator {
	return &fakeEnumerator{dev: dev, ids: []string{"fake:0"}}
}

func (e *fakeEnumerator) Enumerate() ([]string, error) {
	if e.enumErr != nil {
		return nil, e.enumErr
	}
	return e.ids, nil
}

func (e *fakeEnumerator) Acquire(id string) (Device, error) {
	if e.acquireErr != nil {
		return nil, e.acquireErr
	}
	return e.dev, nil
}
