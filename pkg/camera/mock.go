package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

// MockFailures injects errors into MockHardware.
type MockFailures struct {
	Enumerate error // returned by Enumerate
	Open      error // returned synchronously by Open

	DeviceError   error // posted as DeviceFailed instead of DeviceOpened
	Disconnect    bool  // posted as DeviceDisconnected instead of DeviceOpened
	NeverOpen     bool  // Open succeeds but no event is ever posted
	CreateSession error // returned synchronously by CreateSession
	Configure     error // posted as SessionConfigureFailed

	SetRepeating  error
	StopRepeating error
	AbortCaptures error
	CloseSession  error
	CloseDevice   error
}

// MockHardware is an in-memory camera for tests and demos. It produces
// synthetic frames from a bounded pool.
type MockHardware struct {
	Cameras       []Descriptor
	Interval      time.Duration // Frame interval, default 33ms
	StridePadding int           // Extra bytes per RGBA row
	Fail          MockFailures

	logger *slog.Logger

	mu    sync.Mutex
	calls []string

	inFlight atomic.Int64
	produced atomic.Int64
}

// MockOption configures a MockHardware.
type MockOption func(*MockHardware)

// WithCameras replaces the default camera list.
func WithCameras(cams ...Descriptor) MockOption {
	return func(m *MockHardware) { m.Cameras = cams }
}

// WithInterval sets the frame interval.
func WithInterval(d time.Duration) MockOption {
	return func(m *MockHardware) { m.Interval = d }
}

// WithFailures sets injected failures.
func WithFailures(f MockFailures) MockOption {
	return func(m *MockHardware) { m.Fail = f }
}

// DefaultMockCameras returns a front and a back camera with sensors mounted
// at 270 and 90 degrees, like a typical handset.
func DefaultMockCameras() []Descriptor {
	sizes := []Size{{640, 480}, {1280, 720}, {1920, 1080}}
	return []Descriptor{
		{
			ID:                "mock-front",
			Facing:            transform.FacingFront,
			SensorOrientation: 270,
			Formats:           []frame.PixelFormat{frame.RGBA8888, frame.JPEG, frame.YUV420},
			Sizes: map[frame.PixelFormat][]Size{
				frame.RGBA8888: sizes,
				frame.JPEG:     sizes,
				frame.YUV420:   sizes,
			},
		},
		{
			ID:                "mock-back",
			Facing:            transform.FacingBack,
			SensorOrientation: 90,
			Formats:           []frame.PixelFormat{frame.JPEG, frame.YUV420, frame.RGBA8888},
			Sizes: map[frame.PixelFormat][]Size{
				frame.RGBA8888: sizes,
				frame.JPEG:     sizes,
				frame.YUV420:   sizes,
			},
		},
	}
}

// NewMockHardware creates a mock with the default cameras.
func NewMockHardware(logger *slog.Logger, opts ...MockOption) *MockHardware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockHardware{
		Cameras:  DefaultMockCameras(),
		Interval: 33 * time.Millisecond,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockHardware) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

// Calls returns the hardware calls made so far, in order.
func (m *MockHardware) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// InFlight returns the number of frames produced and not yet released.
func (m *MockHardware) InFlight() int { return int(m.inFlight.Load()) }

// Produced returns the number of frames posted.
func (m *MockHardware) Produced() int { return int(m.produced.Load()) }

// Enumerate implements Hardware.
func (m *MockHardware) Enumerate() ([]Descriptor, error) {
	m.record("enumerate")
	if m.Fail.Enumerate != nil {
		return nil, m.Fail.Enumerate
	}
	return append([]Descriptor(nil), m.Cameras...), nil
}

// Open implements Hardware.
func (m *MockHardware) Open(id string, events *Events) error {
	m.record("open:" + id)
	if m.Fail.Open != nil {
		return m.Fail.Open
	}
	if m.Fail.NeverOpen {
		return nil
	}
	go func() {
		switch {
		case m.Fail.DeviceError != nil:
			events.Post(DeviceFailed{Code: 4, Err: m.Fail.DeviceError})
		case m.Fail.Disconnect:
			events.Post(DeviceDisconnected{})
		default:
			events.Post(DeviceOpened{Device: &mockDevice{hw: m, id: id}})
		}
	}()
	return nil
}

type mockDevice struct {
	hw *MockHardware
	id string
}

func (d *mockDevice) CreateSession(cfg StreamConfig, events *Events) error {
	d.hw.record("create_session")
	if d.hw.Fail.CreateSession != nil {
		return d.hw.Fail.CreateSession
	}
	go func() {
		if d.hw.Fail.Configure != nil {
			events.Post(SessionConfigureFailed{Err: d.hw.Fail.Configure})
			return
		}
		events.Post(SessionConfigured{Session: newMockSession(d.hw, cfg, events)})
	}()
	return nil
}

func (d *mockDevice) Close() error {
	d.hw.record("close_device")
	return d.hw.Fail.CloseDevice
}

type mockSession struct {
	hw     *MockHardware
	cfg    StreamConfig
	events *Events

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

func newMockSession(hw *MockHardware, cfg StreamConfig, events *Events) *mockSession {
	return &mockSession{hw: hw, cfg: cfg, events: events}
}

func (s *mockSession) SetRepeating() error {
	s.hw.record("set_repeating")
	if s.hw.Fail.SetRepeating != nil {
		return s.hw.Fail.SetRepeating
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.produce(s.stop, s.stopped)
	return nil
}

func (s *mockSession) halt() {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}
}

func (s *mockSession) StopRepeating() error {
	s.hw.record("stop_repeating")
	s.halt()
	return s.hw.Fail.StopRepeating
}

func (s *mockSession) AbortCaptures() error {
	s.hw.record("abort_captures")
	return s.hw.Fail.AbortCaptures
}

func (s *mockSession) Close() error {
	s.hw.record("close_session")
	s.halt()
	return s.hw.Fail.CloseSession
}

// produce posts frames until stop is closed. At most PoolDepth frames are
// outstanding; when all slots are held it waits.
func (s *mockSession) produce(stop, stopped chan struct{}) {
	defer close(stopped)

	depth := s.cfg.PoolDepth
	if depth < 1 {
		depth = 1
	}
	slots := make(chan struct{}, depth)

	interval := s.hw.Interval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		select {
		case slots <- struct{}{}:
		case <-stop:
			return
		}

		seq++
		planes, err := synthesize(s.cfg, seq, s.hw.StridePadding)
		if err != nil {
			<-slots
			s.hw.logger.Warn("mock camera: synthesize failed", "error", err)
			continue
		}

		s.hw.inFlight.Add(1)
		f := NewFrame(seq, time.Now(), s.cfg.Size.Width, s.cfg.Size.Height, s.cfg.Format, planes, func() {
			s.hw.inFlight.Add(-1)
			<-slots
		})
		if !s.events.Post(FrameAvailable{Frame: f}) {
			return
		}
		s.hw.produced.Add(1)
	}
}

var errMockFormat = errors.New("camera: mock cannot produce format")

// synthesize draws a moving gradient in cfg's format.
func synthesize(cfg StreamConfig, seq uint64, padding int) ([]frame.Plane, error) {
	w, h := cfg.Size.Width, cfg.Size.Height
	shift := int(seq)

	switch cfg.Format {
	case frame.RGBA8888:
		stride := w*frame.BytesPerPixel + padding
		pix := make([]byte, stride*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				o := y*stride + x*frame.BytesPerPixel
				pix[o] = byte(x + shift)
				pix[o+1] = byte(y)
				pix[o+2] = byte(x ^ y)
				pix[o+3] = 0xff
			}
		}
		return []frame.Plane{{Data: pix, RowStride: stride, PixelStride: frame.BytesPerPixel}}, nil

	case frame.JPEG:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, color.RGBA{R: byte(x + shift), G: byte(y), B: byte(x ^ y), A: 0xff})
			}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
			return nil, err
		}
		return []frame.Plane{{Data: buf.Bytes()}}, nil

	case frame.YUV420:
		cw, ch := (w+1)/2, (h+1)/2
		yp := make([]byte, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				yp[y*w+x] = byte(x + y + shift)
			}
		}
		// Chroma is interleaved in one allocation with pixel stride 2.
		uv := make([]byte, cw*2*ch)
		for i := range uv {
			uv[i] = 128
		}
		return []frame.Plane{
			{Data: yp, RowStride: w, PixelStride: 1},
			{Data: uv, RowStride: cw * 2, PixelStride: 2},
			{Data: uv[1:], RowStride: cw * 2, PixelStride: 2},
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", errMockFormat, cfg.Format)
}
