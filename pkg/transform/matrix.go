package transform

import "math"

// Matrix is a 2D affine transform in screen coordinates (y grows downward):
//
//	x' = A*x + B*y + Tx
//	y' = C*x + D*y + Ty
//
// Post* methods append an operation, so it is applied after the existing ones.
type Matrix struct {
	A, B, Tx float64
	C, D, Ty float64
}

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{A: 1, D: 1}
}

// Concat returns the transform that applies m first and then n.
func (m Matrix) Concat(n Matrix) Matrix {
	return Matrix{
		A:  n.A*m.A + n.B*m.C,
		B:  n.A*m.B + n.B*m.D,
		Tx: n.A*m.Tx + n.B*m.Ty + n.Tx,
		C:  n.C*m.A + n.D*m.C,
		D:  n.C*m.B + n.D*m.D,
		Ty: n.C*m.Tx + n.D*m.Ty + n.Ty,
	}
}

// PostTranslate appends a translation.
func (m Matrix) PostTranslate(dx, dy float64) Matrix {
	return m.Concat(Matrix{A: 1, D: 1, Tx: dx, Ty: dy})
}

// PostScale appends a scale about the pivot (px, py).
func (m Matrix) PostScale(sx, sy, px, py float64) Matrix {
	return m.Concat(Matrix{A: sx, D: sy, Tx: px - sx*px, Ty: py - sy*py})
}

// PostRotate appends a clockwise rotation by degrees about (px, py).
func (m Matrix) PostRotate(degrees, px, py float64) Matrix {
	sin, cos := sinCos(degrees)
	r := Matrix{A: cos, B: -sin, C: sin, D: cos}
	r.Tx = px - (r.A*px + r.B*py)
	r.Ty = py - (r.C*px + r.D*py)
	return m.Concat(r)
}

// Apply maps a point.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.B*y + m.Tx, m.C*x + m.D*y + m.Ty
}

// Rect is an axis-aligned rectangle in floating point coordinates.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// MapRect maps r and returns the bounding box of the result.
func (m Matrix) MapRect(r Rect) Rect {
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = m.Apply(r.MinX, r.MinY)
	xs[1], ys[1] = m.Apply(r.MaxX, r.MinY)
	xs[2], ys[2] = m.Apply(r.MinX, r.MaxY)
	xs[3], ys[3] = m.Apply(r.MaxX, r.MaxY)

	out := Rect{MinX: xs[0], MaxX: xs[0], MinY: ys[0], MaxY: ys[0]}
	for i := 1; i < 4; i++ {
		out.MinX = math.Min(out.MinX, xs[i])
		out.MaxX = math.Max(out.MaxX, xs[i])
		out.MinY = math.Min(out.MinY, ys[i])
		out.MaxY = math.Max(out.MaxY, ys[i])
	}
	return out
}

// FitScale returns the largest uniform scale that fits an effW×effH rectangle
// inside dstW×dstH.
func FitScale(effW, effH, dstW, dstH float64) float64 {
	if effW <= 0 || effH <= 0 {
		return 0
	}
	return math.Min(dstH/effH, dstW/effW)
}

// Presentation returns the matrix that maps a srcW×srcH frame onto a
// dstW×dstH display rectangle: rotate about the frame centre, mirror front
// camera frames, move the frame centre to the display centre and scale it
// uniformly to fit.
func Presentation(srcW, srcH, dstW, dstH int, p Parameters) Matrix {
	w, h := float64(srcW), float64(srcH)
	dw, dh := float64(dstW), float64(dstH)
	cx, cy := w/2, h/2

	m := Identity().PostRotate(float64(p.Rotation), cx, cy)

	effW, effH := w, h
	if p.Rotation.SwapsAxes() {
		effW, effH = h, w
	}

	switch p.Mirror {
	case AxisHorizontal:
		m = m.PostScale(-1, 1, cx, cy)
	case AxisVertical:
		m = m.PostScale(1, -1, cx, cy)
	case AxisBoth:
		m = m.PostScale(-1, -1, cx, cy)
	}

	m = m.PostTranslate((dw-w)/2, (dh-h)/2)

	s := FitScale(effW, effH, dw, dh)
	return m.PostScale(s, s, dw/2, dh/2)
}

// sinCos is exact for right angles so composed matrices stay integral.
func sinCos(degrees float64) (float64, float64) {
	switch math.Mod(math.Mod(degrees, 360)+360, 360) {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	rad := degrees * math.Pi / 180
	return math.Sin(rad), math.Cos(rad)
}
