// Package v4l2 is a camera.Hardware backend for Linux Video4Linux2 devices.
//
// Each capture buffer is a kernel mmap slot. A frame holds its slot until
// released, so the configured pool depth bounds how many frames can be in
// flight.
package v4l2

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-dms/pkg/camera"
	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

// DeviceInfo supplies what V4L2 does not report about a camera.
type DeviceInfo struct {
	Facing            transform.Facing `json:"facing" yaml:"facing"`
	SensorOrientation int              `json:"sensor_orientation" yaml:"sensor_orientation"`
}

// Options configure the backend.
type Options struct {
	// Glob selects device nodes. Default "/dev/video*".
	Glob string
	// Devices maps a device path to its mounting. Unlisted devices are
	// external cameras with sensor orientation 0.
	Devices map[string]DeviceInfo
	// FrameTimeout is how long to wait for a frame before polling the stop
	// signal again. Default 1s.
	FrameTimeout time.Duration
	Logger       *slog.Logger
}

func (o *Options) defaults() {
	if o.Glob == "" {
		o.Glob = "/dev/video*"
	}
	if o.FrameTimeout <= 0 {
		o.FrameTimeout = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// fourcc builds a V4L2 pixel format code.
func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var (
	fmtRGBA = fourcc('A', 'B', '2', '4') // V4L2_PIX_FMT_RGBA32, R G B A in memory
	fmtMJPG = fourcc('M', 'J', 'P', 'G')
	fmtJPEG = fourcc('J', 'P', 'E', 'G')
	fmtYU12 = fourcc('Y', 'U', '1', '2')
	fmtNV21 = fourcc('N', 'V', '2', '1')
	fmtYUYV = fourcc('Y', 'U', 'Y', 'V')
)

// toPixelFormat maps a fourcc to a frame format.
func toPixelFormat(code uint32) frame.PixelFormat {
	switch code {
	case fmtRGBA:
		return frame.RGBA8888
	case fmtMJPG, fmtJPEG:
		return frame.JPEG
	case fmtYU12:
		return frame.YUV420
	case fmtNV21:
		return frame.NV21
	case fmtYUYV:
		return frame.YUYV
	}
	return frame.FormatUnknown
}

// fromPixelFormat maps a frame format to the fourcc requested from the driver.
func fromPixelFormat(f frame.PixelFormat) (uint32, bool) {
	switch f {
	case frame.RGBA8888:
		return fmtRGBA, true
	case frame.JPEG:
		return fmtMJPG, true
	case frame.YUV420:
		return fmtYU12, true
	case frame.NV21:
		return fmtNV21, true
	case frame.YUYV:
		return fmtYUYV, true
	}
	return 0, false
}

// commonSizes are offered for drivers that report stepwise ranges.
var commonSizes = []camera.Size{
	{Width: 320, Height: 240},
	{Width: 640, Height: 480},
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
}

// stepwise returns the common sizes inside a min/max range.
func stepwise(minW, maxW, minH, maxH uint32) []camera.Size {
	var out []camera.Size
	for _, s := range commonSizes {
		w, h := uint32(s.Width), uint32(s.Height)
		if w >= minW && w <= maxW && h >= minH && h <= maxH {
			out = append(out, s)
		}
	}
	return out
}

// planesFor splits a tightly packed capture buffer into planes.
func planesFor(f frame.PixelFormat, data []byte, width, height int) []frame.Plane {
	switch f {
	case frame.RGBA8888:
		return []frame.Plane{{Data: data, RowStride: width * frame.BytesPerPixel, PixelStride: frame.BytesPerPixel}}
	case frame.YUV420:
		ySize := width * height
		cw, ch := (width+1)/2, (height+1)/2
		cSize := cw * ch
		if len(data) < ySize+2*cSize {
			return nil
		}
		return []frame.Plane{
			{Data: data[:ySize], RowStride: width, PixelStride: 1},
			{Data: data[ySize : ySize+cSize], RowStride: cw, PixelStride: 1},
			{Data: data[ySize+cSize : ySize+2*cSize], RowStride: cw, PixelStride: 1},
		}
	case frame.NV21:
		ySize := width * height
		if len(data) < ySize {
			return nil
		}
		return []frame.Plane{
			{Data: data[:ySize], RowStride: width, PixelStride: 1},
			{Data: data[ySize:], RowStride: ((width + 1) / 2) * 2, PixelStride: 2},
		}
	default:
		return []frame.Plane{{Data: data, RowStride: len(data)}}
	}
}
