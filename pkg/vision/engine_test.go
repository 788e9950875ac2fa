package vision

import (
	"errors"
	"image/color"
	"testing"

	"github.com/teslashibe/go-dms/pkg/frame"
)

func rgba(t *testing.T, w, h int) *frame.Buffer {
	t.Helper()
	b, err := frame.New(w, h)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestEngine_Process(t *testing.T) {
	mock := NewMockBackend()
	e, err := Open("/models", MockFactory(mock), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	res, err := e.Process(rgba(t, 64, 48))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Detections) != 1 || res.Best == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if w, h, s := mock.LastSize(); w != 64 || h != 48 || s != 256 {
		t.Errorf("backend saw %dx%d stride %d", w, h, s)
	}
	if e.Frames() != 1 {
		t.Errorf("frames = %d", e.Frames())
	}
}

func TestEngine_RejectsNonRGBA(t *testing.T) {
	e, err := Open("", MockFactory(NewMockBackend()), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	b, err := frame.Wrap(make([]byte, 16), 4, 4, 4, frame.JPEG)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Process(b); !errors.Is(err, ErrNotRGBA) {
		t.Errorf("expected ErrNotRGBA, got %v", err)
	}
}

func TestEngine_CloseOnce(t *testing.T) {
	mock := NewMockBackend()
	e, err := Open("", MockFactory(mock), Options{})
	if err != nil {
		t.Fatal(err)
	}
	e.Close()
	e.Close()
	if mock.Destroyed() != 1 {
		t.Errorf("destroyed %d times, want 1", mock.Destroyed())
	}
	if _, err := e.Process(rgba(t, 4, 4)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestEngine_FactoryError(t *testing.T) {
	boom := errors.New("no model")
	_, err := Open("", func(string) (Backend, error) { return nil, boom }, Options{})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped factory error, got %v", err)
	}
}

func TestEngine_BackendErrorNotFatal(t *testing.T) {
	mock := NewMockBackend()
	mock.Err = errors.New("bad frame")
	e, err := Open("", MockFactory(mock), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Process(rgba(t, 4, 4)); err == nil {
		t.Fatal("expected error")
	}
	mock.Err = nil
	if _, err := e.Process(rgba(t, 4, 4)); err != nil {
		t.Fatalf("engine unusable after error: %v", err)
	}
}

func TestEngine_Annotate(t *testing.T) {
	mock := &MockBackend{Detections: []Detection{{X: 0.25, Y: 0.25, W: 0.5, H: 0.5, Confidence: 1}}}
	green := color.RGBA{G: 0xff, A: 0xff}
	e, err := Open("", MockFactory(mock), Options{Annotate: true, BoxColor: green})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	b := rgba(t, 40, 40)
	if _, err := e.Process(b); err != nil {
		t.Fatal(err)
	}
	pix, _ := b.Pix()
	o := 10*b.Stride() + 10*4 // top-left corner of the box
	if pix[o+1] != 0xff {
		t.Errorf("box corner not drawn: %v", pix[o:o+4])
	}
	c := 20*b.Stride() + 20*4 // inside the box
	if pix[c+1] != 0 {
		t.Errorf("box interior was filled: %v", pix[c:c+4])
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name string
		dets []Detection
		want int
	}{
		{"empty", nil, -1},
		{"single", []Detection{{W: 0.1, H: 0.1, Confidence: 0.2}}, 0},
		{"confidence wins", []Detection{
			{W: 0.1, H: 0.1, Confidence: 0.5},
			{W: 0.1, H: 0.1, Confidence: 0.9},
		}, 1},
		{"area breaks near tie", []Detection{
			{W: 0.4, H: 0.4, Confidence: 0.8},
			{W: 0.1, H: 0.1, Confidence: 0.85},
		}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectBest(tc.dets)
			if tc.want < 0 {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got != &tc.dets[tc.want] {
				t.Errorf("picked %+v, want index %d", got, tc.want)
			}
		})
	}
}
