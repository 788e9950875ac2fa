// Package web provides the dashboard API and live websocket feeds for the
// camera pipeline.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-dms/pkg/camera"
	"github.com/teslashibe/go-dms/pkg/hub"
	"github.com/teslashibe/go-dms/pkg/pipeline"
)

// Options configure a Server.
type Options struct {
	// Port to listen on, without the colon.
	Port string
	// StaticDir is served at / when set.
	StaticDir string
	// StatusInterval is how often status is pushed on /ws/status.
	StatusInterval time.Duration

	Camera   *camera.Manager
	Pipeline *pipeline.Pipeline
	// Snapshot returns the latest encoded JPEG frame, or nil.
	Snapshot func() []byte

	Logger *slog.Logger
}

// Status is the payload of /api/status and /ws/status.
type Status struct {
	Uptime   string          `json:"uptime"`
	Camera   *camera.Status  `json:"camera,omitempty"`
	Pipeline *pipeline.Stats `json:"pipeline,omitempty"`
	Clients  map[string]int  `json:"clients"`
}

// Server is the web dashboard server
type Server struct {
	app     *fiber.App
	opts    Options
	logger  *slog.Logger
	started time.Time

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	cameraHub *hub.Hub
}

// NewServer creates a new web dashboard server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Port == "" {
		opts.Port = "8080"
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = time.Second
	}

	s := &Server{
		opts:      opts,
		logger:    opts.Logger.With("component", "web"),
		started:   time.Now(),
		statusHub: hub.New("status", opts.Logger),
		cameraHub: hub.New("camera", opts.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "DMS Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	// CORS for local development
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/presets", s.handlePresets)
	api.Get("/camera/config", s.handleGetConfig)
	api.Post("/camera/config", s.handleUpdateConfig)
	api.Post("/camera/facing", s.handleFacing)
	api.Post("/camera/close", s.handleClose)
	api.Post("/orientation", s.handleOrientation)
	api.Get("/frame.jpg", s.handleFrame)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// SetSnapshot sets the frame source for /api/frame.jpg. Call it before Run.
func (s *Server) SetSnapshot(fn func() []byte) { s.opts.Snapshot = fn }

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// CameraHub carries encoded frames to /ws/camera clients. It satisfies
// display.Broadcaster.
func (s *Server) CameraHub() *hub.Hub { return s.cameraHub }

// StatusHub carries status updates to /ws/status clients.
func (s *Server) StatusHub() *hub.Hub { return s.statusHub }

// Run listens on the configured port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.opts.Port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and status loop and serves on ln until ctx is
// cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.statusHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go s.statusLoop(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()
	s.logger.Info("web dashboard listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownErr := s.app.ShutdownWithTimeout(5 * time.Second)
	if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return shutdownErr
}

func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastEvent("status", s.status()); err != nil {
				s.logger.Warn("status encode failed", "error", err)
			}
		}
	}
}

func (s *Server) status() Status {
	st := Status{
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Clients: map[string]int{
			"status": s.statusHub.ClientCount(),
			"camera": s.cameraHub.ClientCount(),
		},
	}
	if s.opts.Camera != nil {
		cs := s.opts.Camera.Status()
		st.Camera = &cs
	}
	if s.opts.Pipeline != nil {
		ps := s.opts.Pipeline.Stats()
		st.Pipeline = &ps
	}
	return st
}
