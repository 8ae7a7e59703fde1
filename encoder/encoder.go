package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

var (
	// ErrEncodeFailed reports a raw plane whose layout does not match the
	// effective resolution, or an underlying codec failure. No partial
	// output is produced.
	ErrEncodeFailed = errors.New("encoder: encode failed")

	// ErrInvalidFrame reports a pre-encoded plane the encoder cannot
	// accept (unsupported plane layout or zero used bytes).
	ErrInvalidFrame = errors.New("encoder: invalid frame")
)

// Mode selects the input shape the encoder expects.
type Mode int

const (
	// ModeRGB24 re-encodes raw interleaved 3-channel input to JPEG.
	ModeRGB24 Mode = iota
	// ModeMJPEG passes device-native JPEG through after validation.
	ModeMJPEG
)

func (m Mode) String() string {
	switch m {
	case ModeRGB24:
		return "rgb24"
	case ModeMJPEG:
		return "mjpeg"
	default:
		return "unknown"
	}
}

// Plane is the borrowed, scoped view of one captured memory region. Map and
// Unmap bracket a single frame's processing; the encoder never holds a
// mapping across calls.
type Plane interface {
	Map() ([]byte, error)
	Unmap() error
	PlaneCount() int
}

// Encoder produces one self-contained JPEG per completed capture request.
// Construct with New; the zero value is not usable.
type Encoder struct {
	mode    Mode
	width   int
	height  int
	quality int
}

// New creates an encoder for the effective (negotiated) resolution.
// Quality applies to the ModeRGB24 path only and must be in [1, 100].
func New(mode Mode, width, height, quality int) (*Encoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("encoder: invalid resolution %dx%d", width, height)
	}
	if mode == ModeRGB24 && (quality < 1 || quality > 100) {
		return nil, fmt.Errorf("encoder: invalid JPEG quality %d (must be 1-100)", quality)
	}
	return &Encoder{mode: mode, width: width, height: height, quality: quality}, nil
}

// Mode returns the configured input shape.
func (e *Encoder) Mode() Mode { return e.mode }

// Encode maps the plane, produces a JPEG and releases the mapping.
//
// bytesUsed is the device-reported count of valid bytes within the plane
// (hardware buffers are over-allocated; only a prefix is valid). It is
// ignored on the raw path, where the plane must hold exactly
// width*height*3 bytes.
//
// The returned slice is freshly allocated and owned by the caller.
func (e *Encoder) Encode(p Plane, bytesUsed int) ([]byte, error) {
	if e.mode == ModeMJPEG && p.PlaneCount() != 1 {
		return nil, fmt.Errorf("%w: %d planes (expected 1)", ErrInvalidFrame, p.PlaneCount())
	}

	data, err := p.Map()
	if err != nil {
		return nil, fmt.Errorf("%w: mapping plane: %v", ErrEncodeFailed, err)
	}
	defer p.Unmap()

	switch e.mode {
	case ModeRGB24:
		return e.encodeRaw(data)
	case ModeMJPEG:
		return passthrough(data, bytesUsed)
	default:
		return nil, fmt.Errorf("%w: unknown mode %d", ErrEncodeFailed, e.mode)
	}
}

// encodeRaw re-encodes an interleaved 3-channel plane to JPEG, exchanging
// the first and third channel of every pixel. The capture source and JPEG
// disagree on channel order, so the swap is required; omitting it yields
// visibly wrong colors.
func (e *Encoder) encodeRaw(data []byte) ([]byte, error) {
	want := e.width * e.height * 3
	if len(data) != want {
		return nil, fmt.Errorf("%w: plane is %d bytes, want %d for %dx%d",
			ErrEncodeFailed, len(data), want, e.width, e.height)
	}

	img := image.NewRGBA(image.Rect(0, 0, e.width, e.height))
	for y := 0; y < e.height; y++ {
		src := data[y*e.width*3:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < e.width; x++ {
			dst[x*4+0] = src[x*3+2] // first ← third
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+0] // third ← first
			dst[x*4+3] = 0xff
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return buf.Bytes(), nil
}

// passthrough validates a device-native JPEG plane and copies out exactly
// the used prefix. No transcoding.
func passthrough(data []byte, bytesUsed int) ([]byte, error) {
	if bytesUsed <= 0 {
		return nil, fmt.Errorf("%w: zero bytes used", ErrInvalidFrame)
	}
	if bytesUsed > len(data) {
		return nil, fmt.Errorf("%w: %d bytes used exceeds plane length %d",
			ErrInvalidFrame, bytesUsed, len(data))
	}
	out := make([]byte, bytesUsed)
	copy(out, data[:bytesUsed])
	return out, nil
}
