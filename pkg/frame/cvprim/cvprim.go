// Package cvprim implements frame.Primitives on top of OpenCV via gocv.
package cvprim

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

// OpenCV is a frame.Primitives backed by gocv.
type OpenCV struct{}

var _ frame.Primitives = OpenCV{}

var errOddSize = errors.New("cvprim: 4:2:0 conversion needs even width and height")

// Rotate implements frame.Primitives.
func (OpenCV) Rotate(src []byte, width, height, srcStride int, dst []byte, dstStride int, r transform.Rotation) error {
	var code gocv.RotateFlag
	switch r {
	case transform.Rotate90:
		code = gocv.Rotate90Clockwise
	case transform.Rotate180:
		code = gocv.Rotate180Clockwise
	case transform.Rotate270:
		code = gocv.Rotate90CounterClockwise
	case transform.Rotate0:
		return frame.Software{}.Rotate(src, width, height, srcStride, dst, dstStride, r)
	default:
		return frame.ErrInvalidRotation
	}

	in, err := rgbaMat(src, width, height, srcStride)
	if err != nil {
		return err
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.Rotate(in, &out, code)

	return copyOut(out, dst, dstStride)
}

// Flip implements frame.Primitives.
func (OpenCV) Flip(src []byte, width, height, srcStride int, dst []byte, dstStride int, axis transform.Axis) error {
	var code int
	switch axis {
	case transform.AxisHorizontal:
		code = 1
	case transform.AxisVertical:
		code = 0
	case transform.AxisBoth:
		code = -1
	default:
		return frame.Software{}.Flip(src, width, height, srcStride, dst, dstStride, axis)
	}

	in, err := rgbaMat(src, width, height, srcStride)
	if err != nil {
		return err
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.Flip(in, &out, code)

	return copyOut(out, dst, dstStride)
}

// DecodeJPEG implements frame.Primitives.
func (OpenCV) DecodeJPEG(data []byte) ([]byte, int, int, error) {
	bgr, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("imdecode: %w", err)
	}
	defer bgr.Close()
	if bgr.Empty() {
		return nil, 0, 0, errors.New("cvprim: empty image")
	}

	rgba := gocv.NewMat()
	defer rgba.Close()
	gocv.CvtColor(bgr, &rgba, gocv.ColorBGRToRGBA)

	w, h := rgba.Cols(), rgba.Rows()
	pix := make([]byte, w*h*frame.BytesPerPixel)
	if err := copyOut(rgba, pix, w*frame.BytesPerPixel); err != nil {
		return nil, 0, 0, err
	}
	return pix, w, h, nil
}

// YUV420ToRGBA implements frame.Primitives. The planes are repacked into
// I420 layout first since OpenCV expects contiguous planes.
func (OpenCV) YUV420ToRGBA(y, u, v frame.Plane, width, height int, dst []byte, dstStride int) error {
	if width%2 != 0 || height%2 != 0 {
		return errOddSize
	}
	cw, ch := width/2, height/2
	i420 := make([]byte, width*height+2*cw*ch)
	if err := pack(i420[:width*height], y, width, height); err != nil {
		return fmt.Errorf("y: %w", err)
	}
	if err := pack(i420[width*height:width*height+cw*ch], u, cw, ch); err != nil {
		return fmt.Errorf("u: %w", err)
	}
	if err := pack(i420[width*height+cw*ch:], v, cw, ch); err != nil {
		return fmt.Errorf("v: %w", err)
	}
	return yuvToRGBA(i420, width, height, gocv.ColorYUVToRGBAIYUV, dst, dstStride)
}

// NV21ToRGBA implements frame.Primitives.
func (OpenCV) NV21ToRGBA(y, vu frame.Plane, width, height int, dst []byte, dstStride int) error {
	if width%2 != 0 || height%2 != 0 {
		return errOddSize
	}
	buf := make([]byte, width*height*3/2)
	if err := pack(buf[:width*height], y, width, height); err != nil {
		return fmt.Errorf("y: %w", err)
	}
	interleaved := frame.Plane{Data: vu.Data, RowStride: vu.RowStride, PixelStride: 1}
	if err := pack(buf[width*height:], interleaved, width, height/2); err != nil {
		return fmt.Errorf("vu: %w", err)
	}
	return yuvToRGBA(buf, width, height, gocv.ColorYUVToRGBANV21, dst, dstStride)
}

func yuvToRGBA(packed []byte, width, height int, code gocv.ColorConversionCode, dst []byte, dstStride int) error {
	in, err := gocv.NewMatFromBytes(height*3/2, width, gocv.MatTypeCV8UC1, packed)
	if err != nil {
		return fmt.Errorf("cvprim: wrap yuv: %w", err)
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.CvtColor(in, &out, code)
	return copyOut(out, dst, dstStride)
}

// rgbaMat builds a CV_8UC4 Mat from possibly padded rows.
func rgbaMat(src []byte, width, height, stride int) (gocv.Mat, error) {
	row := width * frame.BytesPerPixel
	if stride < row || (height-1)*stride+row > len(src) {
		return gocv.Mat{}, frame.ErrShortBuffer
	}
	tight := src[:row*height]
	if stride != row {
		tight = make([]byte, row*height)
		for y := 0; y < height; y++ {
			copy(tight[y*row:(y+1)*row], src[y*stride:y*stride+row])
		}
	}
	m, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC4, tight)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("cvprim: wrap rgba: %w", err)
	}
	return m, nil
}

// copyOut copies a continuous CV_8UC4 Mat into dst with dstStride.
func copyOut(m gocv.Mat, dst []byte, dstStride int) error {
	w, h := m.Cols(), m.Rows()
	row := w * frame.BytesPerPixel
	if dstStride < row || (h-1)*dstStride+row > len(dst) {
		return frame.ErrShortBuffer
	}
	data := m.ToBytes()
	if len(data) < row*h {
		return fmt.Errorf("cvprim: mat holds %d bytes, want %d", len(data), row*h)
	}
	for y := 0; y < h; y++ {
		copy(dst[y*dstStride:y*dstStride+row], data[y*row:(y+1)*row])
	}
	return nil
}

// pack copies a width×rows single-byte-per-sample plane into tight memory.
func pack(dst []byte, p frame.Plane, width, rows int) error {
	ps := p.PixelStride
	if ps <= 0 {
		ps = 1
	}
	if (rows-1)*p.RowStride+(width-1)*ps+1 > len(p.Data) {
		return frame.ErrShortBuffer
	}
	for y := 0; y < rows; y++ {
		base := y * p.RowStride
		if ps == 1 {
			copy(dst[y*width:(y+1)*width], p.Data[base:base+width])
			continue
		}
		for x := 0; x < width; x++ {
			dst[y*width+x] = p.Data[base+x*ps]
		}
	}
	return nil
}
