package camera

import (
	"sort"

	"github.com/teslashibe/go-dms/pkg/frame"
)

// fallbackFormats is the order tried when the preferred format is missing.
var fallbackFormats = []frame.PixelFormat{frame.RGBA8888, frame.JPEG, frame.YUV420}

// Negotiate picks the stream for desc given the request in cfg. cameraCount
// is the number of cameras enumerated. It never fails: without any usable
// report it keeps the requested format and size.
func Negotiate(desc Descriptor, cfg Config, cameraCount int) StreamConfig {
	fallback := chooseFormat(desc.Formats, cfg.Format)

	format := fallback
	if cfg.ForceRGBAOnMultiCamera && cameraCount > 1 {
		format = frame.RGBA8888
	}

	sizes := desc.Sizes[format]
	if len(sizes) == 0 {
		sizes = desc.Sizes[fallback]
	}

	return StreamConfig{
		Format:    format,
		Size:      ChooseSize(sizes, cfg.Requested()),
		PoolDepth: cfg.PoolDepth,
		Framerate: cfg.Framerate,
	}
}

func chooseFormat(reported []frame.PixelFormat, preferred frame.PixelFormat) frame.PixelFormat {
	if len(reported) == 0 {
		if preferred == frame.FormatUnknown {
			return frame.RGBA8888
		}
		return preferred
	}

	has := make(map[frame.PixelFormat]bool, len(reported))
	for _, f := range reported {
		has[f] = true
	}
	if preferred != frame.FormatUnknown && has[preferred] {
		return preferred
	}
	for _, f := range fallbackFormats {
		if has[f] {
			return f
		}
	}
	return reported[0]
}

// ChooseSize returns the largest size whose area does not exceed the
// requested area. If every size is larger, the smallest is used. Ties are
// broken by smaller width, then smaller height. With no sizes the request is
// returned unchanged.
func ChooseSize(sizes []Size, requested Size) Size {
	if len(sizes) == 0 {
		return requested
	}

	sorted := append([]Size(nil), sizes...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Area() != b.Area() {
			return a.Area() < b.Area()
		}
		if a.Width != b.Width {
			return a.Width < b.Width
		}
		return a.Height < b.Height
	})

	limit := requested.Area()
	best := -1
	for i, s := range sorted {
		if s.Area() > limit {
			break
		}
		// Keep the first size of each area so ties prefer the smaller width.
		if best < 0 || s.Area() > sorted[best].Area() {
			best = i
		}
	}
	if best >= 0 {
		return sorted[best]
	}
	return sorted[0]
}
