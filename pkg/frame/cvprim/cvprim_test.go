package cvprim

import (
	"bytes"
	"testing"

	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

func testPattern(width, height, stride int) []byte {
	pix := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := y*stride + x*frame.BytesPerPixel
			pix[o], pix[o+1], pix[o+2], pix[o+3] = byte(x), byte(y), byte(x*y), 0xff
		}
	}
	return pix
}

func TestRotate_MatchesSoftware(t *testing.T) {
	const w, h, stride = 6, 4, 32
	src := testPattern(w, h, stride)

	for _, r := range []transform.Rotation{transform.Rotate90, transform.Rotate180, transform.Rotate270} {
		dw := w
		if r.SwapsAxes() {
			dw = h
		}
		want := make([]byte, w*h*4)
		got := make([]byte, w*h*4)
		if err := (frame.Software{}).Rotate(src, w, h, stride, want, dw*4, r); err != nil {
			t.Fatal(err)
		}
		if err := (OpenCV{}).Rotate(src, w, h, stride, got, dw*4, r); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("rotate %d differs from software", r)
		}
	}
}

func TestFlip_MatchesSoftware(t *testing.T) {
	const w, h, stride = 5, 3, 24
	for _, axis := range []transform.Axis{transform.AxisHorizontal, transform.AxisVertical, transform.AxisBoth} {
		want := testPattern(w, h, stride)
		got := testPattern(w, h, stride)
		if err := (frame.Software{}).Flip(want, w, h, stride, want, stride, axis); err != nil {
			t.Fatal(err)
		}
		if err := (OpenCV{}).Flip(got, w, h, stride, got, stride, axis); err != nil {
			t.Fatal(err)
		}
		for y := 0; y < h; y++ {
			a := want[y*stride : y*stride+w*4]
			b := got[y*stride : y*stride+w*4]
			if !bytes.Equal(a, b) {
				t.Errorf("flip %s row %d differs", axis, y)
			}
		}
	}
}

func TestNV21_OddSize(t *testing.T) {
	err := (OpenCV{}).NV21ToRGBA(frame.Plane{}, frame.Plane{}, 3, 3, nil, 12)
	if err != errOddSize {
		t.Fatalf("expected errOddSize, got %v", err)
	}
}

func TestPack_PixelStride(t *testing.T) {
	p := frame.Plane{Data: []byte{1, 0, 2, 0, 3, 0, 4}, RowStride: 4, PixelStride: 2}
	dst := make([]byte, 4)
	if err := pack(dst, p, 2, 2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dst, []byte{1, 2, 3, 4}) {
		t.Errorf("pack = %v", dst)
	}
}
