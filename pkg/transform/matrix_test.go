package transform

import (
	"math"
	"testing"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestMatrix_PostRotateRightAngle(t *testing.T) {
	m := Identity().PostRotate(90, 0, 0)
	x, y := m.Apply(1, 0)
	if !near(x, 0) || !near(y, 1) {
		t.Errorf("90° clockwise of (1,0) = (%v,%v), want (0,1)", x, y)
	}
}

func TestMatrix_PostScalePivot(t *testing.T) {
	m := Identity().PostScale(-1, 1, 5, 5)
	x, y := m.Apply(0, 3)
	if !near(x, 10) || !near(y, 3) {
		t.Errorf("mirror about x=5 of (0,3) = (%v,%v), want (10,3)", x, y)
	}
}

func TestPresentation_FitsDestination(t *testing.T) {
	sizes := [][2]int{{640, 480}, {1280, 720}, {480, 640}, {100, 100}}
	dests := [][2]int{{1920, 1080}, {1080, 1920}, {800, 800}, {333, 777}}
	facings := []Facing{FacingFront, FacingBack}

	for _, src := range sizes {
		for _, dst := range dests {
			for _, sensor := range rightAngles {
				for _, f := range facings {
					p := Compute(Inputs{SensorOrientation: sensor, Facing: f})
					m := Presentation(src[0], src[1], dst[0], dst[1], p)
					r := m.MapRect(Rect{MaxX: float64(src[0]), MaxY: float64(src[1])})

					dw, dh := float64(dst[0]), float64(dst[1])
					if r.Width() > dw+1e-6 || r.Height() > dh+1e-6 {
						t.Fatalf("src %v dst %v %+v: mapped %vx%v overflows", src, dst, p, r.Width(), r.Height())
					}
					if !near(r.Width(), dw) && !near(r.Height(), dh) {
						t.Fatalf("src %v dst %v %+v: mapped %vx%v fits neither axis exactly", src, dst, p, r.Width(), r.Height())
					}
					if !near((r.MinX+r.MaxX)/2, dw/2) || !near((r.MinY+r.MaxY)/2, dh/2) {
						t.Fatalf("src %v dst %v %+v: mapped rect not centred: %+v", src, dst, p, r)
					}
				}
			}
		}
	}
}

func TestPresentation_SwapsEffectiveSize(t *testing.T) {
	p := Parameters{Rotation: Rotate90}
	m := Presentation(640, 480, 1000, 1000, p)
	r := m.MapRect(Rect{MaxX: 640, MaxY: 480})

	// Rotated frame is 480 wide, 640 tall, so height is the limiting axis.
	if !near(r.Height(), 1000) {
		t.Errorf("height = %v, want 1000", r.Height())
	}
	if !near(r.Width(), 750) {
		t.Errorf("width = %v, want 750", r.Width())
	}
}

func TestPresentation_FrontMirrorsContent(t *testing.T) {
	// Same size source and destination with no rotation: only the mirror moves points.
	p := Compute(Inputs{SensorOrientation: 0, Facing: FacingFront})
	m := Presentation(100, 50, 100, 50, p)

	x, y := m.Apply(0, 0)
	if !near(x, 0) || !near(y, 50) {
		t.Errorf("vertical mirror of top-left = (%v,%v), want (0,50)", x, y)
	}
}

func TestFitScale(t *testing.T) {
	if s := FitScale(0, 10, 100, 100); s != 0 {
		t.Errorf("degenerate source scale = %v, want 0", s)
	}
	if s := FitScale(200, 100, 100, 100); math.Abs(s-0.5) > eps {
		t.Errorf("scale = %v, want 0.5", s)
	}
}
