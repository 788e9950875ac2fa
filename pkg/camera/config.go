package camera

import (
	"time"

	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

// Config holds the capture request for a session.
type Config struct {
	// === Selection ===
	// Facing is the preferred camera. If no camera has it the first one
	// enumerated is used.
	Facing transform.Facing `json:"facing" yaml:"facing"`

	// === Stream ===
	Width     int               `json:"width" yaml:"width"`         // Requested width in pixels
	Height    int               `json:"height" yaml:"height"`       // Requested height in pixels
	Format    frame.PixelFormat `json:"format" yaml:"format"`       // Preferred pixel format
	Framerate int               `json:"framerate" yaml:"framerate"` // Target FPS

	// PoolDepth is the number of capture buffers in flight. A frame not
	// released holds one slot; when all are held the camera stalls.
	PoolDepth int `json:"pool_depth" yaml:"pool_depth"`

	// ForceRGBAOnMultiCamera negotiates RGBA8888 whenever more than one camera
	// is present, regardless of what else the chosen camera offers.
	ForceRGBAOnMultiCamera bool `json:"force_rgba_on_multi_camera" yaml:"force_rgba_on_multi_camera"`

	// OpenTimeout bounds how long Open waits for enumeration. Zero means no limit.
	OpenTimeout time.Duration `json:"open_timeout" yaml:"open_timeout"`
}

// Limits for configuration values.
const (
	MaxWidth     = 7680
	MaxHeight    = 4320
	MaxPoolDepth = 16
)

// DefaultConfig returns the standard capture request: front camera,
// 1280x720 RGBA with four pool buffers.
func DefaultConfig() Config {
	return Config{
		Facing:    transform.FacingFront,
		Width:     1280,
		Height:    720,
		Format:    frame.RGBA8888,
		Framerate: 30,
		PoolDepth: 4,

		ForceRGBAOnMultiCamera: true,
	}
}

// LegacyConfig returns a 640x480 configuration for slow devices.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < 16 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 16 and 7680")
	}
	if c.Height < 16 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 16 and 4320")
	}
	if c.Framerate < 1 || c.Framerate > 240 {
		errors = append(errors, "framerate must be between 1 and 240")
	}
	if c.PoolDepth < 1 || c.PoolDepth > MaxPoolDepth {
		errors = append(errors, "pool_depth must be between 1 and 16")
	}

	switch c.Format {
	case frame.RGBA8888, frame.JPEG, frame.YUV420, frame.NV21:
	default:
		errors = append(errors, "format must be rgba8888, jpeg, yuv420 or nv21")
	}

	switch c.Facing {
	case transform.FacingFront, transform.FacingBack, transform.FacingExternal:
	default:
		errors = append(errors, "facing must be front, back or external")
	}

	if c.OpenTimeout < 0 {
		errors = append(errors, "open_timeout must not be negative")
	}

	return errors
}

// Requested returns the requested size.
func (c *Config) Requested() Size {
	return Size{Width: c.Width, Height: c.Height}
}
