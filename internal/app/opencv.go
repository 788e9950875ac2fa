//go:build !noopencv

package app

import (
	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/frame/cvprim"
	"github.com/teslashibe/go-dms/pkg/vision"
	"github.com/teslashibe/go-dms/pkg/vision/yunet"
)

// openCVAvailable reports whether this binary links OpenCV.
const openCVAvailable = true

func openCVPrimitives() (frame.Primitives, error) {
	return cvprim.OpenCV{}, nil
}

func yunetFactory(confidence, nms float64) (vision.Factory, error) {
	cfg := yunet.DefaultConfig()
	cfg.ConfidenceThresh = confidence
	cfg.NMSThresh = nms
	return yunet.Factory(cfg), nil
}
