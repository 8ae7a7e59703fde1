package capture

// Enumerator discovers and acquires camera devices. Implementations live in
// the device/ packages; tests supply fakes.
type Enumerator interface {
	// Enumerate lists the available device identifiers.
	Enumerate() ([]string, error)

	// Acquire takes exclusive ownership of a device. Fails with an error
	// wrapping ErrDeviceUnavailable if the device cannot be opened.
	Acquire(id string) (Device, error)
}

// Device is the camera collaborator contract the session drives. The
// session is the only caller of every method except the completion
// callback, which the device invokes from its own driver context.
type Device interface {
	// Negotiate applies the requested format and resolution. The device
	// may adjust width and height; the returned values are authoritative.
	// Fails with an error wrapping ErrConfigurationInvalid on outright
	// rejection.
	Negotiate(f Format, width, height int) (Negotiated, error)

	// AllocateBuffers allocates the fixed set of zero-copy buffers.
	// Fails with an error wrapping ErrAllocationFailed.
	AllocateBuffers() ([]*BufferDescriptor, error)

	// OnCompletion registers the completion callback. The callback runs
	// on a foreign goroutine and must not block beyond a lock acquire.
	// Passing nil deregisters it.
	OnCompletion(fn func(*Request))

	// Queue submits a request to the hardware. Fails with an error
	// wrapping ErrQueueRejected if the device refuses it (expected after
	// stop has begun).
	Queue(r *Request) error

	// Start begins capture. Fails with an error wrapping ErrStartFailed.
	Start() error

	// Stop halts capture. In-flight requests are completed as cancelled.
	Stop() error

	// Release frees buffers and returns the device.
	Release() error
}
