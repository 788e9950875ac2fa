// DMS - oriented camera frame pipeline for driver monitoring
//
// Opens a camera, rotates and mirrors every frame upright, runs the vision
// engine and streams the result to the web dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-dms/internal/app"
	"github.com/teslashibe/go-dms/internal/config"
	dmslog "github.com/teslashibe/go-dms/internal/log"
	"github.com/teslashibe/go-dms/pkg/camera"
	"github.com/teslashibe/go-dms/pkg/transform"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		return 2
	}

	dmslog.Init(cfg.LogLevel)
	logger := dmslog.L()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		return 2
	}
	if err := a.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		return 1
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		return 1
	}
	return 0
}

// parseFlags loads the config file, then applies flags on top.
func parseFlags() (config.App, error) {
	path := flag.String("config", "", "Path to YAML config file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	backend := flag.String("backend", "", "Camera backend: mock, v4l2 (overrides DMS_CAMERA)")
	primitives := flag.String("primitives", "", "Pixel primitives: software, opencv")
	engine := flag.String("engine", "", "Vision engine: none, mock, yunet")
	modelDir := flag.String("model-dir", "", "Model directory for the vision engine")
	facing := flag.String("facing", "", "Camera facing: front, back, external")
	preset := flag.String("preset", "", "Camera preset: "+fmt.Sprint(camera.PresetNames()))
	rotation := flag.Int("rotation", -1, "Display rotation in degrees")
	port := flag.String("port", "", "Dashboard port")
	noWeb := flag.Bool("no-web", false, "Disable the web dashboard")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return cfg, err
	}

	if *debug {
		cfg.LogLevel = "debug"
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *primitives != "" {
		cfg.Primitives = *primitives
	}
	if *engine != "" {
		cfg.Vision.Engine = *engine
	}
	if *modelDir != "" {
		cfg.Vision.ModelDir = *modelDir
	}
	if *preset != "" {
		p := camera.GetPreset(*preset)
		if p == nil {
			return cfg, fmt.Errorf("unknown preset: %s", *preset)
		}
		f := cfg.Camera.Facing
		cfg.Camera = *p
		cfg.Camera.Facing = f
	}
	if *facing != "" {
		f, err := transform.ParseFacing(*facing)
		if err != nil {
			return cfg, err
		}
		cfg.Camera.Facing = f
	}
	if *rotation >= 0 {
		cfg.Display.Rotation = *rotation
	}
	if *port != "" {
		cfg.Web.Port = *port
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	return cfg, nil
}
