package capture

import "errors"

var (
	// ErrDeviceUnavailable reports that no device matched the requested
	// index, or the device could not be acquired.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrConfigurationInvalid reports a configuration the device rejected
	// outright. A non-fatal adjustment is not an error; the session adopts
	// the negotiated values instead.
	ErrConfigurationInvalid = errors.New("capture: configuration invalid")

	// ErrAllocationFailed reports a buffer allocation failure at start.
	ErrAllocationFailed = errors.New("capture: buffer allocation failed")

	// ErrStartFailed reports a device start failure.
	ErrStartFailed = errors.New("capture: device start failed")

	// ErrQueueRejected reports that the device refused a request
	// submission. Fatal during Running; expected during Stopping.
	ErrQueueRejected = errors.New("capture: device rejected request")

	// ErrInvalidState reports a lifecycle call made in the wrong session
	// state.
	ErrInvalidState = errors.New("capture: invalid session state")
)
