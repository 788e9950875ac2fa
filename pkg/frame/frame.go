// Package frame holds camera pixel data and the geometry operations applied
// to it on the way from the capture pool to the vision engine and display.
//
// A Buffer owns its memory (the result of a rotation or a format
// conversion). A View borrows it from the capture pool as a zero-copy RGBA
// frame and carries a release hook which hands the slot back to the camera;
// it must not be used after Release.
package frame

import (
	"errors"
	"fmt"
)

// BytesPerPixel is the size of one RGBA8888 pixel.
const BytesPerPixel = 4

// Errors returned by frame operations.
var (
	ErrUnsupportedFormat = errors.New("frame: unsupported pixel format")
	ErrInvalidRotation   = errors.New("frame: rotation must be 0, 90, 180 or 270")
	ErrConsumed          = errors.New("frame: buffer already consumed")
	ErrShortBuffer       = errors.New("frame: memory smaller than stride*height")
	ErrNoRelease         = errors.New("frame: view needs a release hook")
	ErrBadGeometry       = errors.New("frame: invalid width, height or stride")
)

// PixelFormat identifies the memory layout of a frame.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	// RGBA8888 is 4 bytes per pixel, R first. It is the canonical format.
	RGBA8888
	// JPEG is a single compressed plane.
	JPEG
	// YUV420 is planar 8-bit 4:2:0 with independent row and pixel strides
	// on each plane.
	YUV420
	// NV21 is a Y plane followed by interleaved V/U at half resolution.
	NV21
	// YUYV is packed 4:2:2. Backends may report it but it is not converted.
	YUYV
)

// String returns the lowercase format name.
func (f PixelFormat) String() string {
	switch f {
	case RGBA8888:
		return "rgba8888"
	case JPEG:
		return "jpeg"
	case YUV420:
		return "yuv420"
	case NV21:
		return "nv21"
	case YUYV:
		return "yuyv"
	default:
		return "unknown"
	}
}

// ParsePixelFormat parses a name produced by String.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "rgba8888", "rgba":
		return RGBA8888, nil
	case "jpeg", "mjpeg":
		return JPEG, nil
	case "yuv420", "i420":
		return YUV420, nil
	case "nv21":
		return NV21, nil
	case "yuyv":
		return YUYV, nil
	case "unknown":
		return FormatUnknown, nil
	}
	return FormatUnknown, fmt.Errorf("frame: unknown pixel format %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f PixelFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *PixelFormat) UnmarshalText(b []byte) error {
	v, err := ParsePixelFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Plane is one memory plane of a captured image.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// Image is a frame the pipeline can transform. It is either a *Buffer,
// which owns its memory, or a *View, which borrows memory from the capture
// pool and must be released before that memory is reused.
//
// Images are not safe for concurrent use. They are normally created and
// consumed on the camera worker goroutine.
type Image interface {
	Width() int
	Height() int
	Stride() int
	Format() PixelFormat
	// Pix returns the backing memory, or ErrConsumed.
	Pix() ([]byte, error)
	// Consumed reports whether the image was released or handed to a flip.
	Consumed() bool
	// Release gives the memory back. Later calls do nothing.
	Release()

	hdr() *header
}

type header struct {
	pix      []byte
	width    int
	height   int
	stride   int
	format   PixelFormat
	consumed bool
}

func (h *header) hdr() *header { return h }

// Width returns the width in pixels.
func (h *header) Width() int { return h.width }

// Height returns the height in pixels.
func (h *header) Height() int { return h.height }

// Stride returns the row stride in bytes.
func (h *header) Stride() int { return h.stride }

// Format returns the pixel format.
func (h *header) Format() PixelFormat { return h.format }

// Consumed reports whether the image was released or handed to a flip.
func (h *header) Consumed() bool { return h.consumed }

// Pix returns the backing memory.
func (h *header) Pix() ([]byte, error) {
	if h.consumed {
		return nil, ErrConsumed
	}
	return h.pix, nil
}

// move returns a copy of h and marks h consumed.
func (h *header) move() header {
	out := *h
	out.consumed = false
	h.pix = nil
	h.consumed = true
	return out
}

// Buffer is an image that exclusively owns its memory, such as the result
// of a rotation or a format conversion.
type Buffer struct {
	header
}

// View is an image over memory owned by the capture pool. Its release hook
// runs exactly once, on the first Release.
type View struct {
	header
	release func()
}

var (
	_ Image = (*Buffer)(nil)
	_ Image = (*View)(nil)
)

// New allocates an owned, zeroed RGBA8888 buffer with stride width*4.
func New(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrBadGeometry
	}
	stride := width * BytesPerPixel
	return &Buffer{header{
		pix:    make([]byte, stride*height),
		width:  width,
		height: height,
		stride: stride,
		format: RGBA8888,
	}}, nil
}

// Wrap returns an owned buffer over pix. The caller gives up pix.
func Wrap(pix []byte, width, height, stride int, format PixelFormat) (*Buffer, error) {
	if err := checkGeometry(pix, width, height, stride, format); err != nil {
		return nil, err
	}
	return &Buffer{header{pix: pix, width: width, height: height, stride: stride, format: format}}, nil
}

// Borrow returns a view over memory owned by someone else. release is
// required.
func Borrow(pix []byte, width, height, stride int, format PixelFormat, release func()) (*View, error) {
	if release == nil {
		return nil, ErrNoRelease
	}
	if err := checkGeometry(pix, width, height, stride, format); err != nil {
		return nil, err
	}
	return &View{
		header:  header{pix: pix, width: width, height: height, stride: stride, format: format},
		release: release,
	}, nil
}

func checkGeometry(pix []byte, width, height, stride int, format PixelFormat) error {
	if width <= 0 || height <= 0 || stride <= 0 {
		return ErrBadGeometry
	}
	if format == RGBA8888 && stride < width*BytesPerPixel {
		return ErrBadGeometry
	}
	if stride*height > len(pix) {
		return fmt.Errorf("%w: stride %d height %d len %d", ErrShortBuffer, stride, height, len(pix))
	}
	return nil
}

// Release drops the buffer's memory.
func (b *Buffer) Release() {
	b.consumed = true
	b.pix = nil
}

// Release runs the release hook once and invalidates the view.
func (v *View) Release() {
	if v.consumed {
		return
	}
	v.consumed = true
	v.pix = nil
	if fn := v.release; fn != nil {
		v.release = nil
		fn()
	}
}

// handOff moves img's memory into a new Image of the same kind and marks
// img consumed without releasing anything.
func handOff(img Image) Image {
	switch v := img.(type) {
	case *View:
		out := &View{header: v.move(), release: v.release}
		v.release = nil
		return out
	default:
		return &Buffer{img.hdr().move()}
	}
}

// Surface is a display sink that accepts RGBA8888 frames.
type Surface interface {
	Valid() bool
	Draw(pix []byte, width, height, stride int) error
}
