package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

// State is the session lifecycle state.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpened
	StateConfiguring
	StateCapturing
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpened:
		return "opened"
	case StateConfiguring:
		return "configuring"
	case StateCapturing:
		return "capturing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateClosed; st <= StateError; st++ {
		if string(b) == st.String() {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("camera: unknown state %q", b)
}

// Listener receives captured frames on the session worker. The manager
// releases the frame after the listener returns.
type Listener func(*Frame)

// Manager owns at most one camera session and the worker goroutine that
// serializes its hardware events.
type Manager struct {
	hw     Hardware
	logger *slog.Logger

	listener atomic.Pointer[Listener]

	// opMu serializes Open and Close.
	opMu sync.Mutex
	sess *session

	mu         sync.Mutex
	config     Config
	state      State
	changed    chan struct{}
	desc       Descriptor
	negotiated StreamConfig
	sessionID  string
	lastErr    error

	// OnConfigChange is called after SetConfig accepts a new config.
	OnConfigChange func(cfg Config) error

	// OnOpened is called on the worker goroutine once the device is open,
	// before the session is configured and before any frame is dispatched.
	// Set it before the first Open.
	OnOpened func(desc Descriptor, stream StreamConfig)
}

// session is the per-open worker state. device and stream are only touched
// on the worker goroutine.
type session struct {
	id     string
	events *Events
	desc   Descriptor
	cfg    StreamConfig

	closeReq chan struct{}
	closing  atomic.Bool
	exited   chan struct{}

	device Device
	stream Session
}

// NewManager creates a manager over hw with the given default config.
func NewManager(hw Hardware, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		hw:      hw,
		logger:  logger,
		config:  cfg,
		changed: make(chan struct{}),
	}
}

// SetListener sets the frame callback. Call it while not capturing, or from
// a single goroutine.
func (m *Manager) SetListener(fn Listener) {
	if fn == nil {
		m.listener.Store(nil)
		return
	}
	m.listener.Store(&fn)
}

// Open closes any existing session and opens the camera with the given
// facing, or the first camera if none matches. It returns once the device
// open has been requested; use WaitFor to observe StateCapturing.
func (m *Manager) Open(ctx context.Context, facing transform.Facing) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.closeLocked()

	if err := ctx.Err(); err != nil {
		return err
	}

	cameras, err := m.hw.Enumerate()
	if err != nil {
		return m.openFailed(&AccessError{Op: "enumerate", Err: err})
	}
	if len(cameras) == 0 {
		return m.openFailed(ErrNoDevice)
	}

	desc := cameras[0]
	for _, c := range cameras {
		if c.Facing == facing {
			desc = c
			break
		}
	}
	if desc.Facing != facing {
		m.logger.Warn("no camera with requested facing, using first camera",
			"requested", facing,
			"camera", desc.ID,
			"facing", desc.Facing,
		)
	}

	cfg := m.Config()
	stream := Negotiate(desc, cfg, len(cameras))
	depth := stream.PoolDepth
	if depth < 1 {
		depth = 1
	}

	s := &session{
		id:       uuid.NewString(),
		events:   NewEvents(depth + 8),
		desc:     desc,
		cfg:      stream,
		closeReq: make(chan struct{}),
		exited:   make(chan struct{}),
	}

	m.mu.Lock()
	m.desc = desc
	m.negotiated = stream
	m.sessionID = s.id
	m.lastErr = nil
	m.mu.Unlock()
	m.setState(s, StateOpening)

	m.logger.Info("opening camera",
		"session", s.id,
		"camera", desc.ID,
		"facing", desc.Facing,
		"sensor_orientation", desc.SensorOrientation,
		"format", stream.Format,
		"size", stream.Size,
		"pool_depth", stream.PoolDepth,
	)

	m.sess = s
	go m.run(s)

	if err := m.hw.Open(desc.ID, s.events); err != nil {
		m.closeLocked()
		return m.openFailed(&AccessError{Op: "open", ID: desc.ID, Err: err})
	}
	return nil
}

func (m *Manager) openFailed(err error) error {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	m.logger.Error("camera open failed", "error", err)
	return err
}

// Close tears down the session: stop repeating, abort captures, close the
// session, close the device, then stop and join the worker. It blocks until
// the worker has exited; no listener call happens after it returns. Close
// is idempotent. It must not be called from the listener.
func (m *Manager) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	s := m.sess
	if s == nil {
		return
	}
	m.sess = nil

	s.closing.Store(true)
	close(s.closeReq)
	<-s.exited

	m.setState(nil, StateClosed)
	m.logger.Info("camera closed", "session", s.id)
}

// Switch closes the current session and reopens with the opposite facing.
func (m *Manager) Switch(ctx context.Context) (transform.Facing, error) {
	next := transform.FacingFront
	if m.State() != StateClosed && m.Descriptor().Facing == transform.FacingFront {
		next = transform.FacingBack
	}
	return next, m.Open(ctx, next)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// WaitFor blocks until the state is one of states or ctx is done. If the
// session is closed or has failed and that state was not asked for, it
// returns ErrClosed or the session error.
func (m *Manager) WaitFor(ctx context.Context, states ...State) (State, error) {
	for {
		m.mu.Lock()
		cur, ch, lastErr := m.state, m.changed, m.lastErr
		m.mu.Unlock()

		for _, s := range states {
			if cur == s {
				return cur, nil
			}
		}
		switch cur {
		case StateClosed:
			return cur, ErrClosed
		case StateError:
			if lastErr == nil {
				lastErr = ErrClosed
			}
			return cur, lastErr
		}

		select {
		case <-ctx.Done():
			return cur, ctx.Err()
		case <-ch:
		}
	}
}

// Descriptor returns the descriptor of the open or last opened camera.
func (m *Manager) Descriptor() Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desc
}

// Negotiated returns the stream negotiated for the current session.
func (m *Manager) Negotiated() StreamConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.negotiated
}

// SessionID returns the ID assigned on the last Open.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// LastError returns the error that moved the session to StateError or made
// Open fail.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// setState publishes st. When s is non-nil the change is dropped if s is no
// longer the current session.
func (m *Manager) setState(s *session, st State) {
	m.mu.Lock()
	if s != nil && m.sessionID != s.id {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = st
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	if prev != st {
		m.logger.Debug("camera state", "from", prev, "to", st)
	}
}

func (m *Manager) current(s *session) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionID != s.id {
		return StateClosed
	}
	return m.state
}

// run is the session worker.
func (m *Manager) run(s *session) {
	defer close(s.exited)
	for {
		select {
		case <-s.closeReq:
			m.teardown(s)
			return
		case ev := <-s.events.ch:
			m.handle(s, ev)
		}
	}
}

func (m *Manager) handle(s *session, ev Event) {
	switch e := ev.(type) {
	case DeviceOpened:
		if s.closing.Load() || m.current(s) != StateOpening {
			m.closeStale("device", e.Device.Close)
			return
		}
		s.device = e.Device
		m.setState(s, StateOpened)
		if m.OnOpened != nil {
			m.OnOpened(s.desc, s.cfg)
		}

		m.setState(s, StateConfiguring)
		if err := s.device.CreateSession(s.cfg, s.events); err != nil {
			m.fail(s, fmt.Errorf("%w: %v", ErrConfigureFailed, err))
		}

	case SessionConfigured:
		if s.closing.Load() || m.current(s) != StateConfiguring {
			m.closeStale("session", e.Session.Close)
			return
		}
		s.stream = e.Session
		if err := s.stream.SetRepeating(); err != nil {
			m.fail(s, fmt.Errorf("%w: set repeating: %v", ErrConfigureFailed, err))
			return
		}
		m.setState(s, StateCapturing)
		m.logger.Info("camera capturing", "session", s.id, "format", s.cfg.Format, "size", s.cfg.Size)

	case SessionConfigureFailed:
		m.fail(s, fmt.Errorf("%w: %v", ErrConfigureFailed, e.Err))

	case DeviceDisconnected:
		m.fail(s, ErrDisconnected)

	case DeviceFailed:
		m.fail(s, &DeviceError{Code: e.Code, Err: e.Err})

	case FrameAvailable:
		m.dispatch(s, e.Frame)
	}
}

func (m *Manager) dispatch(s *session, f *Frame) {
	if f == nil {
		return
	}
	defer f.Release()

	if s.closing.Load() || m.current(s) != StateCapturing {
		return
	}
	fn := m.listener.Load()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("frame listener panicked", "seq", f.Seq, "panic", r)
		}
	}()
	(*fn)(f)
}

// fail releases the hardware and moves the session to StateError. The worker
// keeps running until Close so late events are still drained.
func (m *Manager) fail(s *session, err error) {
	m.mu.Lock()
	if m.sessionID == s.id {
		m.lastErr = err
	}
	m.mu.Unlock()

	m.logger.Error("camera session failed", "session", s.id, "error", err)
	m.releaseHardware(s)
	m.setState(s, StateError)
}

// teardown runs on the worker when Close is requested. The queue is shut
// first so backends blocked in Post return, then undelivered events are
// given back and the hardware is released.
func (m *Manager) teardown(s *session) {
	s.events.shutdown()
	for drained := false; !drained; {
		select {
		case ev := <-s.events.ch:
			if err := discard(ev); err != nil {
				m.logger.Warn("closing undelivered resource failed", "session", s.id, "error", err)
			}
		default:
			drained = true
		}
	}

	m.releaseHardware(s)
}

// releaseHardware stops the stream and closes the session and device in
// order. Each failure is logged and the next step still runs.
func (m *Manager) releaseHardware(s *session) {
	if st := s.stream; st != nil {
		s.stream = nil
		m.step(s, "stop repeating", st.StopRepeating)
		m.step(s, "abort captures", st.AbortCaptures)
		m.step(s, "close session", st.Close)
	}
	if d := s.device; d != nil {
		s.device = nil
		m.step(s, "close device", d.Close)
	}
}

func (m *Manager) step(s *session, name string, fn func() error) {
	if err := fn(); err != nil {
		m.logger.Warn("camera teardown step failed", "session", s.id, "step", name, "error", err)
	}
}

func (m *Manager) closeStale(what string, fn func() error) {
	if err := fn(); err != nil {
		m.logger.Warn("closing stale "+what+" failed", "error", err)
	}
}

// Config returns the capture request used by the next Open.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// SetConfig updates the capture request. It takes effect on the next Open.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}
	return nil
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values, plus an optional "preset".
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.Config()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		cfg = *preset
	}

	for key, value := range params {
		switch key {
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "framerate":
			if v, ok := toInt(value); ok {
				cfg.Framerate = v
			}
		case "pool_depth":
			if v, ok := toInt(value); ok {
				cfg.PoolDepth = v
			}
		case "force_rgba_on_multi_camera":
			if v, ok := value.(bool); ok {
				cfg.ForceRGBAOnMultiCamera = v
			}
		case "format":
			if v, ok := value.(string); ok {
				f, err := frame.ParsePixelFormat(v)
				if err != nil {
					return err
				}
				cfg.Format = f
			}
		case "facing":
			if v, ok := value.(string); ok {
				f, err := transform.ParseFacing(v)
				if err != nil {
					return err
				}
				cfg.Facing = f
			}
		}
	}

	return m.SetConfig(cfg)
}

// Status is a snapshot for the API.
type Status struct {
	State      State        `json:"state"`
	SessionID  string       `json:"session_id,omitempty"`
	Camera     Descriptor   `json:"camera"`
	Negotiated StreamConfig `json:"negotiated"`
	Error      string       `json:"error,omitempty"`
}

// Status returns a consistent snapshot of the session.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:      m.state,
		SessionID:  m.sessionID,
		Camera:     m.desc,
		Negotiated: m.negotiated,
	}
	if m.lastErr != nil {
		st.Error = m.lastErr.Error()
	}
	return st
}

// IsClosed reports whether err means the session is gone.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrDisconnected)
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
