//go:build noopencv

package app

import (
	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/vision"
)

const openCVAvailable = false

func openCVPrimitives() (frame.Primitives, error) {
	return nil, errNoOpenCV
}

func yunetFactory(confidence, nms float64) (vision.Factory, error) {
	return nil, errNoOpenCV
}
