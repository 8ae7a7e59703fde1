// Package encoder converts one captured plane of raw pixel data into a
// self-contained JPEG image, or validates a plane that already holds one.
//
// Two input shapes are supported, selected by configuration (never
// auto-detected per frame):
//
//   - ModeRGB24: one plane of interleaved 3-byte pixels whose first and
//     third channels are swapped relative to JPEG's expected order. The
//     encoder reorders the channels scanline by scanline and re-encodes at
//     the configured quality.
//   - ModeMJPEG: the camera hardware already produced a JPEG in the plane;
//     only the device-reported used-byte prefix is valid and is copied out
//     verbatim.
//
// The plane's memory mapping is established on entry and released on every
// exit path; it is never retained across calls.
package encoder
