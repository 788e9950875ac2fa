//go:build !linux

package v4l2

import (
	"fmt"

	"github.com/teslashibe/go-dms/pkg/camera"
)

// Hardware is unavailable on non-Linux platforms.
type Hardware struct{}

// New returns an error on non-Linux platforms.
func New(opts Options) (*Hardware, error) {
	return nil, fmt.Errorf("V4L2 is only available on Linux")
}

// Enumerate implements camera.Hardware.
func (h *Hardware) Enumerate() ([]camera.Descriptor, error) {
	return nil, fmt.Errorf("V4L2 is only available on Linux")
}

// Open implements camera.Hardware.
func (h *Hardware) Open(id string, events *camera.Events) error {
	return fmt.Errorf("V4L2 is only available on Linux")
}
