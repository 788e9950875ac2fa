package vision

import (
	"image/color"

	"github.com/teslashibe/go-dms/pkg/frame"
)

// Annotate draws an outline around each detection directly into RGBA memory.
// Boxes are clipped to the image.
func Annotate(pix []byte, width, height, stride int, dets []Detection, c color.RGBA) {
	thick := max(1, min(width, height)/240)
	for _, d := range dets {
		x0 := clamp(int(d.X*float64(width)), 0, width-1)
		y0 := clamp(int(d.Y*float64(height)), 0, height-1)
		x1 := clamp(int((d.X+d.W)*float64(width)), 0, width-1)
		y1 := clamp(int((d.Y+d.H)*float64(height)), 0, height-1)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		for t := 0; t < thick; t++ {
			hline(pix, stride, x0, x1, min(y0+t, y1), c)
			hline(pix, stride, x0, x1, max(y1-t, y0), c)
			vline(pix, stride, min(x0+t, x1), y0, y1, c)
			vline(pix, stride, max(x1-t, x0), y0, y1, c)
		}
	}
}

func hline(pix []byte, stride, x0, x1, y int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		put(pix, y*stride+x*frame.BytesPerPixel, c)
	}
}

func vline(pix []byte, stride, x, y0, y1 int, c color.RGBA) {
	for y := y0; y <= y1; y++ {
		put(pix, y*stride+x*frame.BytesPerPixel, c)
	}
}

func put(pix []byte, o int, c color.RGBA) {
	if o < 0 || o+3 >= len(pix) {
		return
	}
	pix[o], pix[o+1], pix[o+2], pix[o+3] = c.R, c.G, c.B, c.A
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
