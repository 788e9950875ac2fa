package vision

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-dms/pkg/frame"
)

// Errors returned by the engine.
var (
	ErrClosed  = errors.New("vision: engine closed")
	ErrNotRGBA = errors.New("vision: frame is not RGBA8888")
)

// Backend is a native analysis engine. Process may read and write pix; it
// must not retain it after returning.
type Backend interface {
	Process(pix []byte, width, height, stride int) ([]Detection, error)
	Destroy()
}

// Factory constructs a Backend from a model directory.
type Factory func(modelDir string) (Backend, error)

// Options configure an Engine.
type Options struct {
	// Annotate draws detection boxes onto the frame after processing.
	Annotate bool
	// BoxColor is the annotation color. Default green.
	BoxColor color.RGBA
	Logger   *slog.Logger
}

// Engine owns one backend instance. It is created on Open and destroyed
// exactly once on Close.
type Engine struct {
	opts Options

	mu      sync.Mutex
	backend Backend
	frames  int64
}

// Open creates the backend from modelDir.
func Open(modelDir string, factory Factory, opts Options) (*Engine, error) {
	if factory == nil {
		return nil, errors.New("vision: nil factory")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BoxColor == (color.RGBA{}) {
		opts.BoxColor = color.RGBA{G: 0xff, A: 0xff}
	}

	b, err := factory(modelDir)
	if err != nil {
		return nil, fmt.Errorf("vision: create engine: %w", err)
	}
	opts.Logger.Info("vision engine opened", "model_dir", modelDir, "annotate", opts.Annotate)
	return &Engine{opts: opts, backend: b}, nil
}

// Process runs the engine on an RGBA frame.
func (e *Engine) Process(b frame.Image) (Result, error) {
	if b.Format() != frame.RGBA8888 {
		return Result{}, ErrNotRGBA
	}
	pix, err := b.Pix()
	if err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return Result{}, ErrClosed
	}

	start := time.Now()
	dets, err := e.backend.Process(pix, b.Width(), b.Height(), b.Stride())
	if err != nil {
		return Result{}, fmt.Errorf("vision: process: %w", err)
	}
	e.frames++

	if e.opts.Annotate && len(dets) > 0 {
		Annotate(pix, b.Width(), b.Height(), b.Stride(), dets, e.opts.BoxColor)
	}

	return Result{
		Detections: dets,
		Best:       SelectBest(dets),
		Width:      b.Width(),
		Height:     b.Height(),
		Latency:    time.Since(start),
	}, nil
}

// Frames returns how many frames were processed successfully.
func (e *Engine) Frames() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Close destroys the backend. Later calls do nothing.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return nil
	}
	e.backend.Destroy()
	e.backend = nil
	e.opts.Logger.Info("vision engine closed", "frames", e.frames)
	return nil
}
