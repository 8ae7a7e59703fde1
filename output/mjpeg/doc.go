// Package mjpeg serves the latest published frame over HTTP, both as a
// continuous multipart/x-mixed-replace stream and as single-shot snapshots.
//
// Every client is an independent reader of the frame slot: slow clients
// skip frames instead of backpressuring the capture loop, and each part
// written is a complete JPEG, never a partial frame.
package mjpeg
