package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/teslashibe/go-dms/pkg/transform"
)

// Software implements Primitives in pure Go. It is the default when OpenCV
// is not available and the reference the OpenCV primitives are tested against.
type Software struct{}

var _ Primitives = Software{}

func checkRGBA(pix []byte, width, height, stride int) error {
	if width <= 0 || height <= 0 || stride < width*BytesPerPixel {
		return ErrBadGeometry
	}
	if (height-1)*stride+width*BytesPerPixel > len(pix) {
		return ErrShortBuffer
	}
	return nil
}

// Rotate implements Primitives.
func (Software) Rotate(src []byte, width, height, srcStride int, dst []byte, dstStride int, r transform.Rotation) error {
	if !r.Valid() {
		return ErrInvalidRotation
	}
	dw, dh := width, height
	if r.SwapsAxes() {
		dw, dh = height, width
	}
	if err := checkRGBA(src, width, height, srcStride); err != nil {
		return fmt.Errorf("src: %w", err)
	}
	if err := checkRGBA(dst, dw, dh, dstStride); err != nil {
		return fmt.Errorf("dst: %w", err)
	}

	if r == transform.Rotate0 {
		copyRows(dst, dstStride, src, srcStride, width, height)
		return nil
	}

	for y := 0; y < height; y++ {
		row := src[y*srcStride:]
		for x := 0; x < width; x++ {
			var dx, dy int
			switch r {
			case transform.Rotate90:
				dx, dy = height-1-y, x
			case transform.Rotate180:
				dx, dy = width-1-x, height-1-y
			case transform.Rotate270:
				dx, dy = y, width-1-x
			}
			o := dy*dstStride + dx*BytesPerPixel
			copy(dst[o:o+BytesPerPixel], row[x*BytesPerPixel:x*BytesPerPixel+BytesPerPixel])
		}
	}
	return nil
}

// Flip implements Primitives. src and dst may alias.
func (Software) Flip(src []byte, width, height, srcStride int, dst []byte, dstStride int, axis transform.Axis) error {
	if err := checkRGBA(src, width, height, srcStride); err != nil {
		return fmt.Errorf("src: %w", err)
	}
	if err := checkRGBA(dst, width, height, dstStride); err != nil {
		return fmt.Errorf("dst: %w", err)
	}
	if !sameMemory(src, dst) {
		copyRows(dst, dstStride, src, srcStride, width, height)
	}

	if axis == transform.AxisHorizontal || axis == transform.AxisBoth {
		for y := 0; y < height; y++ {
			row := dst[y*dstStride : y*dstStride+width*BytesPerPixel]
			for l, r := 0, width-1; l < r; l, r = l+1, r-1 {
				lo, ro := l*BytesPerPixel, r*BytesPerPixel
				for i := 0; i < BytesPerPixel; i++ {
					row[lo+i], row[ro+i] = row[ro+i], row[lo+i]
				}
			}
		}
	}
	if axis == transform.AxisVertical || axis == transform.AxisBoth {
		n := width * BytesPerPixel
		tmp := make([]byte, n)
		for t, b := 0, height-1; t < b; t, b = t+1, b-1 {
			top := dst[t*dstStride : t*dstStride+n]
			bot := dst[b*dstStride : b*dstStride+n]
			copy(tmp, top)
			copy(top, bot)
			copy(bot, tmp)
		}
	}
	return nil
}

// DecodeJPEG implements Primitives.
func (Software) DecodeJPEG(data []byte) ([]byte, int, int, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba.Pix, b.Dx(), b.Dy(), nil
}

// YUV420ToRGBA implements Primitives.
func (Software) YUV420ToRGBA(y, u, v Plane, width, height int, dst []byte, dstStride int) error {
	if err := checkRGBA(dst, width, height, dstStride); err != nil {
		return fmt.Errorf("dst: %w", err)
	}
	if err := checkLuma(y, width, height); err != nil {
		return err
	}
	if err := checkChroma(u, width, height); err != nil {
		return fmt.Errorf("u: %w", err)
	}
	if err := checkChroma(v, width, height); err != nil {
		return fmt.Errorf("v: %w", err)
	}

	yps := pixelStride(y)
	ups, vps := pixelStride(u), pixelStride(v)
	for row := 0; row < height; row++ {
		out := dst[row*dstStride:]
		cr := row / 2
		for col := 0; col < width; col++ {
			cc := col / 2
			yy := y.Data[row*y.RowStride+col*yps]
			cb := u.Data[cr*u.RowStride+cc*ups]
			crv := v.Data[cr*v.RowStride+cc*vps]
			putRGBA(out[col*BytesPerPixel:], yy, cb, crv)
		}
	}
	return nil
}

// NV21ToRGBA implements Primitives.
func (Software) NV21ToRGBA(y, vu Plane, width, height int, dst []byte, dstStride int) error {
	if err := checkRGBA(dst, width, height, dstStride); err != nil {
		return fmt.Errorf("dst: %w", err)
	}
	if err := checkLuma(y, width, height); err != nil {
		return err
	}
	cw, ch := (width+1)/2, (height+1)/2
	if vu.RowStride < cw*2 || (ch-1)*vu.RowStride+cw*2 > len(vu.Data) {
		return fmt.Errorf("vu: %w", ErrShortBuffer)
	}

	yps := pixelStride(y)
	for row := 0; row < height; row++ {
		out := dst[row*dstStride:]
		base := (row / 2) * vu.RowStride
		for col := 0; col < width; col++ {
			o := base + (col/2)*2
			yy := y.Data[row*y.RowStride+col*yps]
			putRGBA(out[col*BytesPerPixel:], yy, vu.Data[o+1], vu.Data[o])
		}
	}
	return nil
}

var errPlane = errors.New("frame: plane too small")

func checkLuma(p Plane, width, height int) error {
	ps := pixelStride(p)
	if p.RowStride < width*ps || (height-1)*p.RowStride+(width-1)*ps+1 > len(p.Data) {
		return fmt.Errorf("y: %w", errPlane)
	}
	return nil
}

func checkChroma(p Plane, width, height int) error {
	cw, ch := (width+1)/2, (height+1)/2
	ps := pixelStride(p)
	if (ch-1)*p.RowStride+(cw-1)*ps+1 > len(p.Data) {
		return errPlane
	}
	return nil
}

func pixelStride(p Plane) int {
	if p.PixelStride <= 0 {
		return 1
	}
	return p.PixelStride
}

func putRGBA(dst []byte, y, cb, cr uint8) {
	r, g, b := color.YCbCrToRGB(y, cb, cr)
	dst[0], dst[1], dst[2], dst[3] = r, g, b, 0xff
}

func copyRows(dst []byte, dstStride int, src []byte, srcStride, width, height int) {
	n := width * BytesPerPixel
	for y := 0; y < height; y++ {
		copy(dst[y*dstStride:y*dstStride+n], src[y*srcStride:y*srcStride+n])
	}
}

func sameMemory(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}
