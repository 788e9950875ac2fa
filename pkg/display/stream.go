package display

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-dms/pkg/frame"
)

// Broadcaster receives encoded frames.
type Broadcaster interface {
	BroadcastBinary(data []byte)
	ClientCount() int
}

// StreamConfig controls the JPEG stream.
type StreamConfig struct {
	Width    int           `json:"width" yaml:"width"`     // Output width, 0 keeps frame size
	Height   int           `json:"height" yaml:"height"`   // Output height, 0 keeps frame size
	Quality  int           `json:"quality" yaml:"quality"` // JPEG quality 1-100
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// DefaultStreamConfig returns 640x480 at about 15 FPS.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{Width: 640, Height: 480, Quality: 75, Interval: 66 * time.Millisecond}
}

// Stream is a frame.Surface that JPEG-encodes frames and broadcasts them.
// Frames arriving faster than Interval, or while nobody is listening, are
// skipped.
type Stream struct {
	cfg    StreamConfig
	out    Broadcaster
	canvas *Canvas
	logger *slog.Logger

	mu   sync.Mutex
	last time.Time
	buf  bytes.Buffer

	sent    atomic.Int64
	skipped atomic.Int64
	latest  atomic.Pointer[[]byte]
}

var _ frame.Surface = (*Stream)(nil)

// NewStream creates a stream broadcasting to out.
func NewStream(cfg StreamConfig, out Broadcaster, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 75
	}
	s := &Stream{cfg: cfg, out: out, logger: logger}
	if cfg.Width > 0 && cfg.Height > 0 {
		s.canvas = NewCanvas(cfg.Width, cfg.Height)
	}
	return s
}

// Valid implements frame.Surface.
func (s *Stream) Valid() bool { return s.out != nil }

// Draw implements frame.Surface.
func (s *Stream) Draw(pix []byte, width, height, stride int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.out.ClientCount() == 0 && s.latest.Load() != nil {
		s.skipped.Add(1)
		return nil
	}
	if !s.last.IsZero() && now.Sub(s.last) < s.cfg.Interval {
		s.skipped.Add(1)
		return nil
	}
	s.last = now

	var img image.Image = &image.RGBA{Pix: pix, Stride: stride, Rect: image.Rect(0, 0, width, height)}
	if s.canvas != nil {
		if err := s.canvas.Draw(pix, width, height, stride); err != nil {
			return err
		}
		img = s.canvas.Snapshot()
	}

	s.buf.Reset()
	if err := jpeg.Encode(&s.buf, img, &jpeg.Options{Quality: s.cfg.Quality}); err != nil {
		s.logger.Warn("stream encode failed", "error", err)
		return err
	}

	data := append([]byte(nil), s.buf.Bytes()...)
	s.latest.Store(&data)
	s.out.BroadcastBinary(data)
	s.sent.Add(1)
	return nil
}

// Latest returns the most recent encoded frame, or nil.
func (s *Stream) Latest() []byte {
	if p := s.latest.Load(); p != nil {
		return *p
	}
	return nil
}

// Sent returns the number of frames broadcast.
func (s *Stream) Sent() int64 { return s.sent.Load() }

// Skipped returns the number of frames throttled away.
func (s *Stream) Skipped() int64 { return s.skipped.Load() }
