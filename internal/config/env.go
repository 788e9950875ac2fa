package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/teslashibe/go-dms/pkg/transform"
)

// DefaultPort is the dashboard port when neither file nor DMS_PORT set one.
const DefaultPort = "8080"

// Environment variables read by ApplyEnv.
const (
	EnvCamera   = "DMS_CAMERA"
	EnvFacing   = "DMS_FACING"
	EnvModelDir = "DMS_MODEL_DIR"
	EnvEngine   = "DMS_ENGINE"
	EnvPort     = "DMS_PORT"
	EnvLogLevel = "DMS_LOG_LEVEL"
	EnvRotation = "DMS_DISPLAY_ROTATION"
)

// ApplyEnv overrides cfg from DMS_* environment variables.
func ApplyEnv(cfg *App) error {
	cfg.Backend = envOr(EnvCamera, cfg.Backend)
	cfg.Vision.ModelDir = envOr(EnvModelDir, cfg.Vision.ModelDir)
	cfg.Vision.Engine = envOr(EnvEngine, cfg.Vision.Engine)
	cfg.Web.Port = envOr(EnvPort, cfg.Web.Port)
	cfg.LogLevel = envOr(EnvLogLevel, cfg.LogLevel)

	if v := os.Getenv(EnvFacing); v != "" {
		f, err := transform.ParseFacing(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFacing, err)
		}
		cfg.Camera.Facing = f
	}
	if v := os.Getenv(EnvRotation); v != "" {
		r, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRotation, err)
		}
		cfg.Display.Rotation = r
	}
	return nil
}

// envOr returns the value of key, or def if unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
