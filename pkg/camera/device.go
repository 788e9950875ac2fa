package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

// Size is a frame size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns Width*Height.
func (s Size) Area() int { return s.Width * s.Height }

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Descriptor describes one camera as reported by the hardware.
type Descriptor struct {
	ID     string           `json:"id"`
	Facing transform.Facing `json:"facing"`
	// SensorOrientation is the clockwise rotation in degrees that makes the
	// sensor image upright in the device's natural orientation.
	SensorOrientation int                          `json:"sensor_orientation"`
	Formats           []frame.PixelFormat          `json:"formats"`
	Sizes             map[frame.PixelFormat][]Size `json:"sizes"`
}

// StreamConfig is the negotiated stream a session is configured with.
type StreamConfig struct {
	Format    frame.PixelFormat `json:"format"`
	Size      Size              `json:"size"`
	PoolDepth int               `json:"pool_depth"`
	Framerate int               `json:"framerate"`
}

// Hardware enumerates and opens cameras.
//
// Open reports synchronous failure as an error. Success is reported later by
// posting DeviceOpened, or DeviceFailed/DeviceDisconnected, to events.
type Hardware interface {
	Enumerate() ([]Descriptor, error)
	Open(id string, events *Events) error
}

// Device is an opened camera.
type Device interface {
	// CreateSession begins configuring a capture session. The outcome is
	// posted to events as SessionConfigured or SessionConfigureFailed.
	CreateSession(cfg StreamConfig, events *Events) error
	Close() error
}

// Session is a configured capture session. Once SetRepeating succeeds,
// frames are posted as FrameAvailable events.
type Session interface {
	SetRepeating() error
	StopRepeating() error
	AbortCaptures() error
	Close() error
}

// Frame is one captured image. Its planes are only valid until Release,
// which returns the pool slot to the camera.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Format    frame.PixelFormat
	Planes    []frame.Plane

	once    sync.Once
	release func()
}

// NewFrame returns a frame whose Release calls release once.
func NewFrame(seq uint64, ts time.Time, width, height int, format frame.PixelFormat, planes []frame.Plane, release func()) *Frame {
	return &Frame{
		Seq:       seq,
		Timestamp: ts,
		Width:     width,
		Height:    height,
		Format:    format,
		Planes:    planes,
		release:   release,
	}
}

// Release returns the frame's slot to the pool. It is safe to call more
// than once and from any goroutine.
func (f *Frame) Release() {
	f.once.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// Event is a hardware notification delivered to the session worker.
type Event interface {
	event()
}

// DeviceOpened reports that Hardware.Open finished.
type DeviceOpened struct{ Device Device }

// DeviceDisconnected reports that the camera went away.
type DeviceDisconnected struct{}

// DeviceFailed reports a fatal camera error.
type DeviceFailed struct {
	Code int
	Err  error
}

// SessionConfigured reports that the stream is ready.
type SessionConfigured struct{ Session Session }

// SessionConfigureFailed reports that the stream could not be configured.
type SessionConfigureFailed struct{ Err error }

// FrameAvailable carries a captured frame.
type FrameAvailable struct{ Frame *Frame }

func (DeviceOpened) event()           {}
func (DeviceDisconnected) event()     {}
func (DeviceFailed) event()           {}
func (SessionConfigured) event()      {}
func (SessionConfigureFailed) event() {}
func (FrameAvailable) event()         {}

// Events is the queue from the hardware into one session worker.
type Events struct {
	ch   chan Event
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewEvents returns a queue buffering up to size events.
func NewEvents(size int) *Events {
	return &Events{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

// Post delivers ev to the worker, blocking while the queue is full. It
// returns false once the session is shutting down. A rejected event gives
// back what it carries: frames are released, devices and sessions closed.
func (e *Events) Post(ev Event) bool {
	e.mu.RLock()
	if !e.closed {
		select {
		case e.ch <- ev:
			e.mu.RUnlock()
			return true
		case <-e.done:
		}
	}
	e.mu.RUnlock()

	discard(ev)
	return false
}

// discard gives back whatever an undelivered event holds.
func discard(ev Event) error {
	switch e := ev.(type) {
	case FrameAvailable:
		if e.Frame != nil {
			e.Frame.Release()
		}
	case DeviceOpened:
		if e.Device != nil {
			return e.Device.Close()
		}
	case SessionConfigured:
		if e.Session != nil {
			return e.Session.Close()
		}
	}
	return nil
}

// Done is closed when the session stops accepting events.
func (e *Events) Done() <-chan struct{} { return e.done }

// shutdown stops accepting events. After it returns no Post is in flight,
// so draining the queue sees everything that was accepted.
func (e *Events) shutdown() {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return
	}
	close(e.done)
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
