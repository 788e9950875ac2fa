// Package vision is the boundary to the face analysis engine that consumes
// oriented RGBA frames.
package vision

import "time"

// Detection represents a detected face
type Detection struct {
	// Top-left corner and size, normalized to 0-1
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Confidence float64 `json:"confidence"` // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Result is what the engine reports for one frame.
type Result struct {
	Detections []Detection   `json:"detections"`
	Best       *Detection    `json:"best,omitempty"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Latency    time.Duration `json:"latency_ns"`
}

// SelectBest picks the best face from multiple detections
// Priority: confidence * 0.7 + area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	// Find max area for normalization
	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}
