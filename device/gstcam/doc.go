// Package gstcam implements the capture.Device contract on top of a
// GStreamer pipeline (libcamerasrc → videoconvert → capsfilter → appsink),
// delivering raw interleaved BGR frames for the software JPEG path.
//
// The appsink's new-sample callback plays the role of the hardware
// completion callback: each pulled sample is copied into the buffer of the
// oldest idle request and the request is completed. GStreamer reuses its
// own buffers after the callback returns, so the copy is mandatory; the
// per-request buffers then behave like the fixed zero-copy pool the session
// expects. When no idle request is available the sample is dropped and
// counted, which is exactly the hardware-starved-for-buffers condition the
// fixed pool is designed to surface.
package gstcam
