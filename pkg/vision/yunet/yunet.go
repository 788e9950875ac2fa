// Package yunet is a vision.Backend using OpenCV's FaceDetectorYN.
package yunet

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/vision"
)

// ModelFile is the model looked up inside the model directory.
const ModelFile = "face_detection_yunet.onnx"

// Config holds detector configuration
type Config struct {
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	NMSThresh        float64 // Non-maximum suppression threshold (default 0.3)
	InputWidth       int     // Initial model input width
	InputHeight      int     // Initial model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// Detector uses OpenCV's FaceDetectorYN for face detection
type Detector struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex
	size     image.Point
}

var _ vision.Backend = (*Detector)(nil)

// Factory returns a vision.Factory building detectors with cfg.
func Factory(cfg Config) vision.Factory {
	return func(modelDir string) (vision.Backend, error) {
		return New(filepath.Join(modelDir, ModelFile), cfg)
	}
}

// New creates a detector from the ONNX model at modelPath.
func New(modelPath string, cfg Config) (*Detector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	size := image.Pt(cfg.InputWidth, cfg.InputHeight)
	detector := gocv.NewFaceDetectorYNWithParams(
		modelPath,
		"", // No config file needed for ONNX
		size,
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &Detector{detector: detector, size: size}, nil
}

// Process implements vision.Backend.
func (d *Detector) Process(pix []byte, width, height, stride int) ([]vision.Detection, error) {
	row := width * frame.BytesPerPixel
	if stride < row || (height-1)*stride+row > len(pix) {
		return nil, frame.ErrShortBuffer
	}
	tight := pix[:row*height]
	if stride != row {
		tight = make([]byte, row*height)
		for y := 0; y < height; y++ {
			copy(tight[y*row:(y+1)*row], pix[y*stride:y*stride+row])
		}
	}

	rgba, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC4, tight)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)

	d.mu.Lock()
	defer d.mu.Unlock()

	if p := image.Pt(width, height); p != d.size {
		d.detector.SetInputSize(p)
		d.size = p
	}

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(bgr, &faces)

	imgW, imgH := float64(width), float64(height)
	var detections []vision.Detection
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		x := float64(faces.GetFloatAt(r, 0))
		y := float64(faces.GetFloatAt(r, 1))
		w := float64(faces.GetFloatAt(r, 2))
		h := float64(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		detections = append(detections, vision.Detection{
			X:          x / imgW,
			Y:          y / imgH,
			W:          w / imgW,
			H:          h / imgH,
			Confidence: score,
		})
	}

	return detections, nil
}

// Destroy implements vision.Backend.
func (d *Detector) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
}
