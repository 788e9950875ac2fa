// Package display provides frame.Surface sinks: an in-memory letterboxing
// canvas and a JPEG stream for remote viewers.
package display

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

// Canvas is a fixed-size RGBA window. Each Draw scales the frame uniformly
// to fit and centers it, filling the margins with the background color.
type Canvas struct {
	mu     sync.Mutex
	img    *image.RGBA
	bg     color.RGBA
	scaler draw.Scaler
	closed bool
	draws  int64
	last   image.Rectangle
}

var _ frame.Surface = (*Canvas)(nil)

// NewCanvas creates a width×height canvas with a black background.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{
		bg:     color.RGBA{A: 0xff},
		scaler: draw.ApproxBiLinear,
	}
	if width > 0 && height > 0 {
		c.img = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return c
}

// SetScaler replaces the interpolator (draw.NearestNeighbor, draw.CatmullRom, ...).
func (c *Canvas) SetScaler(s draw.Scaler) {
	c.mu.Lock()
	c.scaler = s
	c.mu.Unlock()
}

// Valid implements frame.Surface.
func (c *Canvas) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.img != nil && !c.closed
}

// Close invalidates the canvas; later draws are skipped by frame.Draw.
func (c *Canvas) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Draw implements frame.Surface.
func (c *Canvas) Draw(pix []byte, width, height, stride int) error {
	src := &image.RGBA{Pix: pix, Stride: stride, Rect: image.Rect(0, 0, width, height)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil || c.closed {
		return nil
	}

	dst := c.img.Bounds()
	r := fitRect(width, height, dst.Dx(), dst.Dy())

	draw.Draw(c.img, dst, &image.Uniform{C: c.bg}, image.Point{}, draw.Src)
	c.scaler.Scale(c.img, r, src, src.Bounds(), draw.Src, nil)
	c.last = r
	c.draws++
	return nil
}

// DrawRaw renders a frame that has not been rotated or mirrored yet. The
// frame goes through the presentation matrix for p, so it lands upright,
// mirrored and letterboxed as Draw would place the normalized frame.
func (c *Canvas) DrawRaw(pix []byte, width, height, stride int, p transform.Parameters) error {
	src := &image.RGBA{Pix: pix, Stride: stride, Rect: image.Rect(0, 0, width, height)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil || c.closed {
		return nil
	}

	dst := c.img.Bounds()
	m := transform.Presentation(width, height, dst.Dx(), dst.Dy(), p)

	t, ok := c.scaler.(draw.Transformer)
	if !ok {
		t = draw.ApproxBiLinear
	}
	draw.Draw(c.img, dst, &image.Uniform{C: c.bg}, image.Point{}, draw.Src)
	t.Transform(c.img, f64.Aff3{m.A, m.B, m.Tx, m.C, m.D, m.Ty}, src, src.Bounds(), draw.Src, nil)

	r := m.MapRect(transform.Rect{MaxX: float64(width), MaxY: float64(height)})
	c.last = image.Rect(int(r.MinX+0.5), int(r.MinY+0.5), int(r.MaxX+0.5), int(r.MaxY+0.5))
	c.draws++
	return nil
}

// Snapshot returns a copy of the canvas.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.img == nil {
		return nil
	}
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

// Draws returns the number of frames drawn.
func (c *Canvas) Draws() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draws
}

// LastRect returns where the last frame landed.
func (c *Canvas) LastRect() image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// fitRect returns the centered rectangle a srcW×srcH image occupies when
// scaled uniformly to fit dstW×dstH.
func fitRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	s := transform.FitScale(float64(srcW), float64(srcH), float64(dstW), float64(dstH))
	w := int(float64(srcW)*s + 0.5)
	h := int(float64(srcH)*s + 0.5)
	w, h = min(w, dstW), min(h, dstH)
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}
