// Package app wires the camera, pipeline, vision engine and dashboard into
// the dms binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-dms/internal/config"
	"github.com/teslashibe/go-dms/pkg/camera"
	"github.com/teslashibe/go-dms/pkg/camera/v4l2"
	"github.com/teslashibe/go-dms/pkg/display"
	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/pipeline"
	"github.com/teslashibe/go-dms/pkg/vision"
	"github.com/teslashibe/go-dms/pkg/web"
)

// defaultOpenTimeout bounds the wait for the first Capturing state when the
// camera config does not set one.
const defaultOpenTimeout = 10 * time.Second

// detectionInterval throttles detection events on the status feed.
const detectionInterval = 200 * time.Millisecond

// errNoOpenCV is returned for OpenCV backends in a noopencv build.
var errNoOpenCV = errors.New("app: built with noopencv, OpenCV backends unavailable")

// App is the running dms application.
type App struct {
	config config.App
	logger *slog.Logger

	hardware camera.Hardware
	prims    frame.Primitives
	engine   *vision.Engine
	manager  *camera.Manager
	pipeline *pipeline.Pipeline

	stream    *display.Stream
	canvas    *display.Canvas
	webServer *web.Server

	lastDetection time.Time
}

// New creates the application with the given configuration.
func New(cfg config.App, logger *slog.Logger) (*App, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{config: cfg, logger: logger}, nil
}

// Init builds all components. Call it after New and before Run.
func (a *App) Init() error {
	var err error
	if a.hardware, err = a.newHardware(); err != nil {
		return fmt.Errorf("camera backend: %w", err)
	}
	if a.prims, err = a.newPrimitives(); err != nil {
		return fmt.Errorf("primitives: %w", err)
	}

	if a.engine, err = a.newEngine(); err != nil {
		return fmt.Errorf("vision engine: %w", err)
	}

	var proc pipeline.Processor
	if a.engine != nil {
		proc = a.engine
	}
	a.pipeline = pipeline.New(a.prims, proc, pipeline.Options{
		DisplayRotation: a.config.Display.Rotation,
		OnResult:        a.onResult,
		Logger:          a.logger.With("component", "pipeline"),
	})

	a.manager = camera.NewManager(a.hardware, a.config.Camera, a.logger.With("component", "camera"))
	a.manager.OnOpened = a.pipeline.Attach
	a.manager.SetListener(a.pipeline.HandleFrame)

	if a.config.Web.Enabled {
		a.webServer = web.NewServer(web.Options{
			Port:           a.config.Web.Port,
			StaticDir:      a.config.Web.StaticDir,
			StatusInterval: a.config.Web.StatusInterval,
			Camera:         a.manager,
			Pipeline:       a.pipeline,
			Logger:         a.logger,
		})
		a.stream = display.NewStream(a.config.Display.Stream, a.webServer.CameraHub(), a.logger.With("component", "stream"))
		a.pipeline.SetSurface(a.stream)
		a.webServer.SetSnapshot(a.stream.Latest)
	} else {
		s := a.config.Display.Stream
		a.canvas = display.NewCanvas(s.Width, s.Height)
		a.pipeline.SetSurface(a.canvas)
	}

	a.logger.Info("initialized",
		"backend", a.config.Backend,
		"primitives", a.config.Primitives,
		"engine", a.config.Vision.Engine,
		"web", a.config.Web.Enabled,
	)
	return nil
}

func (a *App) newHardware() (camera.Hardware, error) {
	switch a.config.Backend {
	case config.BackendV4L2:
		return v4l2.New(v4l2.Options{
			Glob:         a.config.V4L2.Glob,
			Devices:      a.config.V4L2.Devices,
			FrameTimeout: a.config.V4L2.FrameTimeout,
			Logger:       a.logger.With("component", "v4l2"),
		})
	default:
		return camera.NewMockHardware(a.logger.With("component", "mock-camera"),
			camera.WithInterval(a.config.Mock.Interval)), nil
	}
}

func (a *App) newPrimitives() (frame.Primitives, error) {
	if a.config.Primitives == config.PrimitivesOpenCV {
		return openCVPrimitives()
	}
	return frame.Software{}, nil
}

func (a *App) newEngine() (*vision.Engine, error) {
	v := a.config.Vision
	var factory vision.Factory
	switch v.Engine {
	case config.EngineYuNet:
		f, err := yunetFactory(v.Confidence, v.NMS)
		if err != nil {
			return nil, err
		}
		factory = f
	case config.EngineMock:
		factory = vision.MockFactory(vision.NewMockBackend())
	default:
		return nil, nil
	}
	return vision.Open(v.ModelDir, factory, vision.Options{
		Annotate: v.Annotate,
		Logger:   a.logger.With("component", "vision"),
	})
}

// onResult runs on the camera worker.
func (a *App) onResult(res vision.Result) {
	if a.webServer == nil || res.Best == nil {
		return
	}
	now := time.Now()
	if now.Sub(a.lastDetection) < detectionInterval {
		return
	}
	a.lastDetection = now
	if err := a.webServer.StatusHub().BroadcastEvent("detection", res); err != nil {
		a.logger.Debug("detection encode failed", "error", err)
	}
}

// Run opens the camera and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.openCamera(ctx); err != nil {
		return err
	}

	if a.webServer != nil {
		a.logger.Info("dashboard", "url", "http://localhost:"+a.config.Web.Port)
		return a.webServer.Run(ctx)
	}

	<-ctx.Done()
	return nil
}

func (a *App) openCamera(ctx context.Context) error {
	if err := a.manager.Open(ctx, a.config.Camera.Facing); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	timeout := a.config.Camera.OpenTimeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	st, err := a.manager.WaitFor(waitCtx, camera.StateCapturing)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("camera did not start within %s (state %s)", timeout, a.manager.State())
		}
		return fmt.Errorf("camera start: %w", err)
	}

	status := a.manager.Status()
	a.logger.Info("camera ready",
		"state", st,
		"camera", status.Camera.ID,
		"format", status.Negotiated.Format,
		"size", status.Negotiated.Size,
		"transform", a.pipeline.Params(),
	)
	return nil
}

// Manager returns the camera manager.
func (a *App) Manager() *camera.Manager { return a.manager }

// Pipeline returns the frame pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Shutdown closes the camera, then the engine. No frame reaches the
// engine after the camera has closed.
func (a *App) Shutdown() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Debug("engine close", "error", err)
		}
	}
	if a.pipeline != nil {
		st := a.pipeline.Stats()
		a.logger.Info("shutdown",
			"frames", st.Frames,
			"dropped", st.Dropped,
			"engine_errors", st.EngineErrors,
			"avg_total", st.Average.Total,
		)
	}
}
