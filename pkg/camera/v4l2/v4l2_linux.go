//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/teslashibe/go-dms/pkg/camera"
	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

// Hardware enumerates and opens V4L2 devices.
type Hardware struct {
	opts Options
}

var _ camera.Hardware = (*Hardware)(nil)

// New creates the V4L2 backend.
func New(opts Options) (*Hardware, error) {
	opts.defaults()
	return &Hardware{opts: opts}, nil
}

// Enumerate implements camera.Hardware.
func (h *Hardware) Enumerate() ([]camera.Descriptor, error) {
	paths, err := filepath.Glob(h.opts.Glob)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", h.opts.Glob, err)
	}
	sort.Strings(paths)

	var out []camera.Descriptor
	for _, p := range paths {
		desc, err := h.describe(p)
		if err != nil {
			h.opts.Logger.Debug("skipping video device", "path", p, "error", err)
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}

func (h *Hardware) describe(path string) (camera.Descriptor, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return camera.Descriptor{}, err
	}
	defer cam.Close()

	info := DeviceInfo{Facing: transform.FacingExternal}
	if di, ok := h.opts.Devices[path]; ok {
		info = di
	}

	desc := camera.Descriptor{
		ID:                path,
		Facing:            info.Facing,
		SensorOrientation: info.SensorOrientation,
		Sizes:             make(map[frame.PixelFormat][]camera.Size),
	}
	for code := range cam.GetSupportedFormats() {
		pf := toPixelFormat(uint32(code))
		if pf == frame.FormatUnknown {
			continue
		}
		desc.Formats = append(desc.Formats, pf)
		for _, fs := range cam.GetSupportedFrameSizes(code) {
			if fs.MinWidth == fs.MaxWidth && fs.MinHeight == fs.MaxHeight {
				desc.Sizes[pf] = append(desc.Sizes[pf], camera.Size{Width: int(fs.MaxWidth), Height: int(fs.MaxHeight)})
				continue
			}
			desc.Sizes[pf] = append(desc.Sizes[pf], stepwise(fs.MinWidth, fs.MaxWidth, fs.MinHeight, fs.MaxHeight)...)
		}
	}
	if len(desc.Formats) == 0 {
		return camera.Descriptor{}, errors.New("no supported pixel formats")
	}
	sort.Slice(desc.Formats, func(i, j int) bool { return desc.Formats[i] < desc.Formats[j] })
	return desc, nil
}

// Open implements camera.Hardware.
func (h *Hardware) Open(id string, events *camera.Events) error {
	cam, err := webcam.Open(id)
	if err != nil {
		return err
	}
	d := &device{path: id, cam: cam, opts: h.opts, logger: h.opts.Logger.With("device", id)}
	go events.Post(camera.DeviceOpened{Device: d})
	return nil
}

type device struct {
	path   string
	opts   Options
	logger *slog.Logger

	mu  sync.Mutex
	cam *webcam.Webcam
}

func (d *device) CreateSession(cfg camera.StreamConfig, events *camera.Events) error {
	code, ok := fromPixelFormat(cfg.Format)
	if !ok {
		return fmt.Errorf("v4l2: no fourcc for %s", cfg.Format)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	got, w, h, err := d.cam.SetImageFormat(webcam.PixelFormat(code), uint32(cfg.Size.Width), uint32(cfg.Size.Height))
	if err != nil {
		go events.Post(camera.SessionConfigureFailed{Err: err})
		return nil
	}
	if toPixelFormat(uint32(got)) != cfg.Format {
		go events.Post(camera.SessionConfigureFailed{Err: fmt.Errorf("driver chose %s", toPixelFormat(uint32(got)))})
		return nil
	}
	if err := d.cam.SetBufferCount(uint32(cfg.PoolDepth)); err != nil {
		go events.Post(camera.SessionConfigureFailed{Err: fmt.Errorf("set buffer count: %w", err)})
		return nil
	}
	stream := cfg
	stream.Size = camera.Size{Width: int(w), Height: int(h)}
	d.logger.Info("v4l2 stream configured", "format", stream.Format, "size", stream.Size, "buffers", cfg.PoolDepth)
	s := &session{dev: d, cfg: stream, events: events}
	go events.Post(camera.SessionConfigured{Session: s})
	return nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return nil
	}
	err := d.cam.Close()
	d.cam = nil
	return err
}

type session struct {
	dev    *device
	cfg    camera.StreamConfig
	events *camera.Events

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

func (s *session) SetRepeating() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	s.dev.mu.Lock()
	err := s.dev.cam.StartStreaming()
	s.dev.mu.Unlock()
	if err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}

	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.capture(s.stop, s.stopped)
	return nil
}

func (s *session) halt() {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
		<-stopped
	}
}

func (s *session) StopRepeating() error {
	s.halt()
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.dev.cam == nil {
		return nil
	}
	return s.dev.cam.StopStreaming()
}

// AbortCaptures is a no-op: V4L2 drops queued buffers on STREAMOFF.
func (s *session) AbortCaptures() error { return nil }

func (s *session) Close() error {
	s.halt()
	return nil
}

func (s *session) capture(stop, stopped chan struct{}) {
	defer close(stopped)

	timeout := uint32(s.dev.opts.FrameTimeout / time.Second)
	if timeout == 0 {
		timeout = 1
	}

	var seq uint64
	for {
		select {
		case <-stop:
			return
		default:
		}

		err := s.dev.cam.WaitForFrame(timeout)
		var te *webcam.Timeout
		switch {
		case errors.As(err, &te):
			continue
		case err != nil:
			s.events.Post(camera.DeviceFailed{Code: 1, Err: err})
			return
		}

		s.dev.mu.Lock()
		data, index, err := s.dev.cam.GetFrame()
		s.dev.mu.Unlock()
		if err != nil {
			s.events.Post(camera.DeviceFailed{Code: 2, Err: err})
			return
		}
		if len(data) == 0 {
			s.requeue(index)
			continue
		}

		w, h := s.cfg.Size.Width, s.cfg.Size.Height
		planes := planesFor(s.cfg.Format, data, w, h)
		if planes == nil {
			s.requeue(index)
			continue
		}

		seq++
		idx := index
		f := camera.NewFrame(seq, time.Now(), w, h, s.cfg.Format, planes, func() { s.requeue(idx) })
		if !s.events.Post(camera.FrameAvailable{Frame: f}) {
			return
		}
	}
}

func (s *session) requeue(index uint32) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.dev.cam == nil {
		return
	}
	if err := s.dev.cam.ReleaseFrame(index); err != nil {
		s.dev.logger.Debug("release frame failed", "index", index, "error", err)
	}
}
