// Package v4l2 implements the capture.Device contract on top of a V4L2
// camera via github.com/blackjack/webcam, delivering device-native MJPEG
// frames for the passthrough path.
//
// A reader goroutine plays the role of the hardware completion callback:
// it blocks on the driver's frame availability, pairs each dequeued frame
// with the oldest idle request and completes it. The dequeued mmap slice is
// handed to the request as-is (true zero-copy); Unmap releases the frame
// back to the driver, so the mapping is strictly scoped to one frame's
// processing. When no idle request is available the frame is released
// immediately and counted, surfacing the starved-pool condition.
package v4l2
