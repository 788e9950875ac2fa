package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-dms/pkg/camera"
	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
	"github.com/teslashibe/go-dms/pkg/vision"
)

// Processor analyses an upright RGBA frame. *vision.Engine implements it.
type Processor interface {
	Process(b frame.Image) (vision.Result, error)
}

// Options configure a Pipeline.
type Options struct {
	// DisplayRotation is the initial display rotation in degrees.
	DisplayRotation int
	// OnResult is called on the camera worker after each successful
	// Process. It must not block.
	OnResult func(vision.Result)
	Logger   *slog.Logger
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Frames       int64                `json:"frames"`
	Dropped      int64                `json:"dropped"`
	EngineErrors int64                `json:"engine_errors"`
	Draws        int64                `json:"draws"`
	DrawSkipped  int64                `json:"draw_skipped"`
	DrawErrors   int64                `json:"draw_errors"`
	Panics       int64                `json:"panics"`
	Inputs       transform.Inputs     `json:"inputs"`
	Params       transform.Parameters `json:"params"`
	Stream       camera.StreamConfig  `json:"stream"`
	Last         StageTimes           `json:"last"`
	Average      StageTimes           `json:"average"`
	LastResult   *vision.Result       `json:"last_result,omitempty"`
}

type surfaceRef struct{ s frame.Surface }

// Pipeline is the per-frame orchestrator. HandleFrame is meant to be the
// camera.Manager listener and runs on the camera worker goroutine.
type Pipeline struct {
	prims    frame.Primitives
	engine   Processor
	onResult func(vision.Result)
	logger   *slog.Logger

	surface atomic.Pointer[surfaceRef]
	params  atomic.Pointer[transform.Parameters]
	result  atomic.Pointer[vision.Result]
	metrics *Metrics

	// mu guards the orientation inputs; params is derived from them.
	mu     sync.Mutex
	inputs transform.Inputs
	stream camera.StreamConfig

	frames       atomic.Int64
	dropped      atomic.Int64
	engineErrors atomic.Int64
	draws        atomic.Int64
	drawSkipped  atomic.Int64
	drawErrors   atomic.Int64
	panics       atomic.Int64
}

// New creates a pipeline. engine may be nil to skip analysis.
func New(prims frame.Primitives, engine Processor, opts Options) *Pipeline {
	if prims == nil {
		prims = frame.Software{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Pipeline{
		prims:    prims,
		engine:   engine,
		onResult: opts.OnResult,
		logger:   opts.Logger,
		metrics:  NewMetrics(),
		inputs:   transform.Inputs{DisplayRotation: opts.DisplayRotation, Facing: transform.FacingBack},
	}
	p.recompute()
	return p
}

// Attach takes the orientation facts of a newly opened camera. Its signature
// matches camera.Manager.OnOpened.
func (p *Pipeline) Attach(desc camera.Descriptor, stream camera.StreamConfig) {
	p.mu.Lock()
	p.inputs.SensorOrientation = desc.SensorOrientation
	p.inputs.Facing = desc.Facing
	p.stream = stream
	p.mu.Unlock()
	p.recompute()
}

// SetDisplayRotation updates the display rotation in degrees.
func (p *Pipeline) SetDisplayRotation(degrees int) {
	p.mu.Lock()
	p.inputs.DisplayRotation = int(transform.Normalize(degrees))
	p.mu.Unlock()
	p.recompute()
}

// recompute derives params from the current inputs. It is the only writer
// of params.
func (p *Pipeline) recompute() {
	p.mu.Lock()
	in := p.inputs
	params := transform.Compute(in)
	old := p.params.Swap(&params)
	p.mu.Unlock()

	if old == nil || *old != params {
		p.logger.Info("frame transform updated",
			"sensor_orientation", in.SensorOrientation,
			"display_rotation", in.DisplayRotation,
			"facing", in.Facing,
			"rotation", int(params.Rotation),
			"mirror", params.Mirror,
		)
	}
}

// Params returns the current transform parameters.
func (p *Pipeline) Params() transform.Parameters { return *p.params.Load() }

// Inputs returns the current orientation inputs.
func (p *Pipeline) Inputs() transform.Inputs {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inputs
}

// SetSurface sets the display sink. nil removes it.
func (p *Pipeline) SetSurface(s frame.Surface) {
	if s == nil {
		p.surface.Store(nil)
		return
	}
	p.surface.Store(&surfaceRef{s: s})
}

func (p *Pipeline) currentSurface() frame.Surface {
	if r := p.surface.Load(); r != nil {
		return r.s
	}
	return nil
}

// HandleFrame runs one frame through the pipeline and releases it. It never
// panics; a failing collaborator costs only the current frame.
func (p *Pipeline) HandleFrame(f *camera.Frame) {
	if f == nil {
		return
	}
	start := time.Now()
	defer f.Release()

	var (
		st  StageTimes
		buf frame.Image
	)
	defer func() {
		if buf != nil {
			buf.Release()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.dropped.Add(1)
			p.logger.Error("frame pipeline panicked", "seq", f.Seq, "panic", r)
		}
	}()

	p.frames.Add(1)
	params := p.Params()

	t := time.Now()
	b, err := frame.FromPlanes(p.prims, f.Width, f.Height, f.Format, f.Planes, f.Release)
	st.Wrap = time.Since(t)
	if err != nil {
		p.drop(f, "wrap", err)
		return
	}
	buf = b

	t = time.Now()
	rotated, err := frame.Rotate(p.prims, buf, params.Rotation)
	st.Rotate = time.Since(t)
	if err != nil {
		p.drop(f, "rotate", err)
		return
	}
	if rotated != buf {
		// The source is no longer needed; give the pool slot back early.
		buf.Release()
		buf = rotated
	}

	t = time.Now()
	flipped, err := frame.Flip(p.prims, buf, params.Mirror)
	st.Flip = time.Since(t)
	if err != nil {
		p.drop(f, "flip", err)
		return
	}
	buf = flipped

	if p.engine != nil {
		t = time.Now()
		res, err := p.engine.Process(buf)
		st.Process = time.Since(t)
		if err != nil {
			p.engineErrors.Add(1)
			p.logger.Debug("engine failed", "seq", f.Seq, "error", err)
		} else {
			p.result.Store(&res)
			if p.onResult != nil {
				p.onResult(res)
			}
		}
	}

	t = time.Now()
	p.draw(f, buf)
	st.Draw = time.Since(t)

	st.Total = time.Since(start)
	p.metrics.Record(st)
	p.logger.Debug("frame processed",
		"seq", f.Seq,
		"size", fmt.Sprintf("%dx%d", buf.Width(), buf.Height()),
		"wrap", st.Wrap,
		"rotate", st.Rotate,
		"flip", st.Flip,
		"process", st.Process,
		"draw", st.Draw,
		"total", st.Total,
	)
}

func (p *Pipeline) draw(f *camera.Frame, buf frame.Image) {
	s := p.currentSurface()
	if s == nil || !s.Valid() {
		p.drawSkipped.Add(1)
		return
	}
	if err := frame.Draw(buf, s); err != nil {
		p.drawErrors.Add(1)
		p.logger.Debug("draw failed", "seq", f.Seq, "error", err)
		return
	}
	p.draws.Add(1)
}

func (p *Pipeline) drop(f *camera.Frame, stage string, err error) {
	p.dropped.Add(1)
	p.logger.Warn("frame dropped", "seq", f.Seq, "stage", stage, "format", f.Format, "error", err)
}

// LastResult returns the most recent engine result, or nil.
func (p *Pipeline) LastResult() *vision.Result { return p.result.Load() }

// Metrics returns the stage timing collector.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	in, stream := p.inputs, p.stream
	p.mu.Unlock()

	return Stats{
		Frames:       p.frames.Load(),
		Dropped:      p.dropped.Load(),
		EngineErrors: p.engineErrors.Load(),
		Draws:        p.draws.Load(),
		DrawSkipped:  p.drawSkipped.Load(),
		DrawErrors:   p.drawErrors.Load(),
		Panics:       p.panics.Load(),
		Inputs:       in,
		Params:       p.Params(),
		Stream:       stream,
		Last:         p.metrics.Last(),
		Average:      p.metrics.Average(),
		LastResult:   p.result.Load(),
	}
}
