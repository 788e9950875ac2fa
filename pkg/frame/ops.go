package frame

import (
	"fmt"
	"image"

	"github.com/teslashibe/go-dms/pkg/transform"
)

// Primitives are the raw pixel operations. Every call takes explicit strides;
// none of them may assume rows are tightly packed.
type Primitives interface {
	// Rotate writes src rotated clockwise by r into dst. dst has the
	// rotated dimensions.
	Rotate(src []byte, width, height, srcStride int, dst []byte, dstStride int, r transform.Rotation) error
	// Flip writes src mirrored on axis into dst. src and dst may be the
	// same memory.
	Flip(src []byte, width, height, srcStride int, dst []byte, dstStride int, axis transform.Axis) error
	// DecodeJPEG decodes data to tightly packed RGBA8888.
	DecodeJPEG(data []byte) (pix []byte, width, height int, err error)
	// YUV420ToRGBA converts three planes to RGBA8888 in dst.
	YUV420ToRGBA(y, u, v Plane, width, height int, dst []byte, dstStride int) error
	// NV21ToRGBA converts a Y plane and an interleaved VU plane to RGBA8888 in dst.
	NV21ToRGBA(y, vu Plane, width, height int, dst []byte, dstStride int) error
}

// Rotate returns src rotated clockwise by r.
//
// For Rotate0 src itself is returned. Otherwise the result is a new owned
// RGBA8888 *Buffer with stride newWidth*4 and src is left untouched; the
// caller still owns src and must release it.
func Rotate(p Primitives, src Image, r transform.Rotation) (Image, error) {
	if !r.Valid() {
		return nil, ErrInvalidRotation
	}
	h := src.hdr()
	if h.consumed {
		return nil, ErrConsumed
	}
	if r == transform.Rotate0 {
		return src, nil
	}
	if h.format != RGBA8888 {
		return nil, fmt.Errorf("%w: rotate %s", ErrUnsupportedFormat, h.format)
	}

	w, ht := h.width, h.height
	if r.SwapsAxes() {
		w, ht = ht, w
	}
	dst, err := New(w, ht)
	if err != nil {
		return nil, err
	}
	if err := p.Rotate(h.pix, h.width, h.height, h.stride, dst.pix, dst.stride, r); err != nil {
		return nil, fmt.Errorf("rotate %d: %w", r, err)
	}
	return dst, nil
}

// Flip mirrors img in place on axis.
//
// For AxisNone img itself is returned. Otherwise ownership moves to the
// returned image: it is of the same kind, holds the same memory (and, for a
// *View, the same release hook) and img is consumed. Using img afterwards
// yields ErrConsumed.
func Flip(p Primitives, img Image, axis transform.Axis) (Image, error) {
	h := img.hdr()
	if h.consumed {
		return nil, ErrConsumed
	}
	if axis == transform.AxisNone {
		return img, nil
	}
	if h.format != RGBA8888 {
		return nil, fmt.Errorf("%w: flip %s", ErrUnsupportedFormat, h.format)
	}
	if err := p.Flip(h.pix, h.width, h.height, h.stride, h.pix, h.stride, axis); err != nil {
		return nil, fmt.Errorf("flip %s: %w", axis, err)
	}
	return handOff(img), nil
}

// FromPlanes builds an Image from captured planes.
//
// RGBA8888 input is wrapped without copying in a *View whose release hook is
// release. JPEG, YUV420 and NV21 input is converted to a new owned RGBA8888
// *Buffer with stride width*4; release is called once the source planes are
// no longer referenced. On error release is not called.
func FromPlanes(p Primitives, width, height int, format PixelFormat, planes []Plane, release func()) (Image, error) {
	need := map[PixelFormat]int{RGBA8888: 1, JPEG: 1, YUV420: 3, NV21: 2}
	n, ok := need[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if len(planes) < n {
		return nil, fmt.Errorf("frame: %s needs %d planes, got %d", format, n, len(planes))
	}

	var (
		out *Buffer
		err error
	)
	switch format {
	case RGBA8888:
		v, err := Borrow(planes[0].Data, width, height, planes[0].RowStride, RGBA8888, release)
		if err != nil {
			return nil, err
		}
		return v, nil

	case JPEG:
		var (
			pix  []byte
			w, h int
		)
		pix, w, h, err = p.DecodeJPEG(planes[0].Data)
		if err != nil {
			return nil, fmt.Errorf("decode jpeg: %w", err)
		}
		out, err = Wrap(pix, w, h, w*BytesPerPixel, RGBA8888)

	case YUV420:
		out, err = New(width, height)
		if err == nil {
			err = p.YUV420ToRGBA(planes[0], planes[1], planes[2], width, height, out.pix, out.stride)
		}

	case NV21:
		out, err = New(width, height)
		if err == nil {
			err = p.NV21ToRGBA(planes[0], planes[1], width, height, out.pix, out.stride)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", format, err)
	}
	if release != nil {
		release()
	}
	return out, nil
}

// Draw hands img to s. It does nothing unless img is RGBA8888 and s is
// non-nil and valid.
func Draw(img Image, s Surface) error {
	if s == nil || img == nil {
		return nil
	}
	h := img.hdr()
	if h.consumed || h.format != RGBA8888 || !s.Valid() {
		return nil
	}
	return s.Draw(h.pix, h.width, h.height, h.stride)
}

// ToRGBA copies an RGBA8888 image into an image.RGBA.
func ToRGBA(img Image) (*image.RGBA, error) {
	h := img.hdr()
	if h.consumed {
		return nil, ErrConsumed
	}
	if h.format != RGBA8888 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, h.format)
	}
	out := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	row := h.width * BytesPerPixel
	for y := 0; y < h.height; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+row], h.pix[y*h.stride:y*h.stride+row])
	}
	return out, nil
}

// Clone returns an owned copy of an RGBA8888 image with tight stride.
func Clone(img Image) (*Buffer, error) {
	out, err := ToRGBA(img)
	if err != nil {
		return nil, err
	}
	return Wrap(out.Pix, img.Width(), img.Height(), out.Stride, RGBA8888)
}
