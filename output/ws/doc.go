// Package ws pushes the latest published frame to WebSocket clients as
// binary messages, one complete JPEG per message.
//
// Like the HTTP stream, every client reads the frame slot independently:
// a slow client skips frames instead of backpressuring the capture loop.
package ws
