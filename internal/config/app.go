// Package config loads the go-dms application configuration from YAML and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-dms/pkg/camera"
	"github.com/teslashibe/go-dms/pkg/camera/v4l2"
	"github.com/teslashibe/go-dms/pkg/display"
)

// Camera backends.
const (
	BackendMock = "mock"
	BackendV4L2 = "v4l2"
)

// Pixel primitive implementations.
const (
	PrimitivesSoftware = "software"
	PrimitivesOpenCV   = "opencv"
)

// Vision engines.
const (
	EngineNone  = "none"
	EngineMock  = "mock"
	EngineYuNet = "yunet"
)

// App is the full application configuration.
type App struct {
	LogLevel   string `yaml:"log_level"`
	Backend    string `yaml:"backend"`
	Primitives string `yaml:"primitives"`

	Camera  camera.Config `yaml:"camera"`
	V4L2    V4L2          `yaml:"v4l2"`
	Mock    Mock          `yaml:"mock"`
	Vision  Vision        `yaml:"vision"`
	Display Display       `yaml:"display"`
	Web     Web           `yaml:"web"`
}

// V4L2 configures the Linux capture backend.
type V4L2 struct {
	Glob         string                     `yaml:"glob"`
	FrameTimeout time.Duration              `yaml:"frame_timeout"`
	Devices      map[string]v4l2.DeviceInfo `yaml:"devices"`
}

// Mock configures the synthetic camera.
type Mock struct {
	Interval time.Duration `yaml:"interval"`
}

// Vision configures the analysis engine.
type Vision struct {
	Engine     string  `yaml:"engine"`
	ModelDir   string  `yaml:"model_dir"`
	Annotate   bool    `yaml:"annotate"`
	Confidence float64 `yaml:"confidence"`
	NMS        float64 `yaml:"nms"`
}

// Display configures orientation and the JPEG stream.
type Display struct {
	// Rotation is the display rotation in degrees from natural orientation.
	Rotation int                  `yaml:"rotation"`
	Stream   display.StreamConfig `yaml:"stream"`
}

// Web configures the dashboard.
type Web struct {
	Enabled        bool          `yaml:"enabled"`
	Port           string        `yaml:"port"`
	StaticDir      string        `yaml:"static_dir"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// Default returns the configuration used when no file is given.
func Default() App {
	return App{
		LogLevel:   "info",
		Backend:    BackendMock,
		Primitives: PrimitivesSoftware,
		Camera:     camera.DefaultConfig(),
		V4L2: V4L2{
			Glob:         "/dev/video*",
			FrameTimeout: time.Second,
		},
		Mock: Mock{Interval: 33 * time.Millisecond},
		Vision: Vision{
			Engine:     EngineNone,
			ModelDir:   "models",
			Annotate:   true,
			Confidence: 0.5,
			NMS:        0.3,
		},
		Display: Display{Stream: display.DefaultStreamConfig()},
		Web: Web{
			Enabled:        true,
			Port:           DefaultPort,
			StatusInterval: time.Second,
		},
	}
}

// Load reads path over the defaults and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (App, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration and returns all problems found.
func (a App) Validate() []string {
	var errs []string

	switch a.Backend {
	case BackendMock, BackendV4L2:
	default:
		errs = append(errs, fmt.Sprintf("backend must be %q or %q", BackendMock, BackendV4L2))
	}
	switch a.Primitives {
	case PrimitivesSoftware, PrimitivesOpenCV:
	default:
		errs = append(errs, fmt.Sprintf("primitives must be %q or %q", PrimitivesSoftware, PrimitivesOpenCV))
	}
	switch a.Vision.Engine {
	case EngineNone, EngineMock:
	case EngineYuNet:
		if a.Vision.ModelDir == "" {
			errs = append(errs, "vision.model_dir is required for yunet")
		}
	default:
		errs = append(errs, fmt.Sprintf("vision.engine must be %q, %q or %q", EngineNone, EngineMock, EngineYuNet))
	}
	if a.Vision.Confidence < 0 || a.Vision.Confidence > 1 {
		errs = append(errs, "vision.confidence must be between 0 and 1")
	}
	if a.Display.Rotation%90 != 0 {
		errs = append(errs, "display.rotation must be a multiple of 90")
	}
	if q := a.Display.Stream.Quality; q < 1 || q > 100 {
		errs = append(errs, "display.stream.quality must be between 1 and 100")
	}
	if a.Web.Enabled && a.Web.Port == "" {
		errs = append(errs, "web.port is required when web is enabled")
	}
	for _, e := range a.Camera.Validate() {
		errs = append(errs, "camera: "+e)
	}
	return errs
}

// Check returns Validate's problems as one error, or nil.
func (a App) Check() error {
	errs := a.Validate()
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = errors.New(e)
	}
	return fmt.Errorf("invalid config: %w", errors.Join(joined...))
}
