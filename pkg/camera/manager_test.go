package camera

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/transform"
)

func newTestManager(t *testing.T, opts ...MockOption) (*Manager, *MockHardware) {
	t.Helper()
	opts = append([]MockOption{WithInterval(2 * time.Millisecond)}, opts...)
	hw := NewMockHardware(nil, opts...)
	m := NewManager(hw, DefaultConfig(), nil)
	t.Cleanup(m.Close)
	return m, hw
}

func waitCapturing(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := m.WaitFor(ctx, StateCapturing)
	require.NoError(t, err)
	require.Equal(t, StateCapturing, st)
}

func TestManager_OpenReachesCapturing(t *testing.T) {
	m, hw := newTestManager(t)

	var frames atomic.Int64
	m.SetListener(func(f *Frame) { frames.Add(1) })

	require.NoError(t, m.Open(context.Background(), transform.FacingBack))
	waitCapturing(t, m)

	assert.Equal(t, "mock-back", m.Descriptor().ID)
	assert.NotEmpty(t, m.SessionID())
	assert.Equal(t, Size{1280, 720}, m.Negotiated().Size)
	// Two cameras are present, so RGBA is forced even though the back
	// camera lists JPEG first.
	assert.Equal(t, frame.RGBA8888, m.Negotiated().Format)

	assert.Eventually(t, func() bool { return frames.Load() >= 3 }, 2*time.Second, time.Millisecond)

	m.Close()
	assert.Equal(t, StateClosed, m.State())
	assert.Equal(t, 0, hw.InFlight(), "all frames returned to the pool")
}

func TestManager_FallsBackToFirstCamera(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Open(context.Background(), transform.FacingExternal))
	waitCapturing(t, m)
	assert.Equal(t, "mock-front", m.Descriptor().ID)
	assert.Equal(t, transform.FacingFront, m.Descriptor().Facing)
}

func TestManager_OnOpenedBeforeFrames(t *testing.T) {
	m, _ := newTestManager(t)

	var opened atomic.Bool
	var early atomic.Int64
	m.OnOpened = func(desc Descriptor, stream StreamConfig) {
		assert.Equal(t, "mock-front", desc.ID)
		assert.Equal(t, frame.RGBA8888, stream.Format)
		opened.Store(true)
	}
	var frames atomic.Int64
	m.SetListener(func(f *Frame) {
		if !opened.Load() {
			early.Add(1)
		}
		frames.Add(1)
	})

	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)
	assert.Eventually(t, func() bool { return frames.Load() >= 2 }, 2*time.Second, time.Millisecond)
	m.Close()

	assert.True(t, opened.Load())
	assert.Zero(t, early.Load())
}

func TestManager_NoDevice(t *testing.T) {
	m, _ := newTestManager(t, WithCameras())
	err := m.Open(context.Background(), transform.FacingFront)
	require.ErrorIs(t, err, ErrNoDevice)
	assert.Equal(t, StateClosed, m.State())
}

func TestManager_AccessErrors(t *testing.T) {
	boom := errors.New("permission denied")

	t.Run("enumerate", func(t *testing.T) {
		m, _ := newTestManager(t, WithFailures(MockFailures{Enumerate: boom}))
		err := m.Open(context.Background(), transform.FacingFront)
		var ae *AccessError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "enumerate", ae.Op)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, StateClosed, m.State())
	})

	t.Run("open", func(t *testing.T) {
		m, _ := newTestManager(t, WithFailures(MockFailures{Open: boom}))
		err := m.Open(context.Background(), transform.FacingFront)
		require.True(t, IsAccessError(err))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, StateClosed, m.State())
	})
}

func TestManager_AsyncFailuresReachError(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		fail MockFailures
		want error
	}{
		{"device error", MockFailures{DeviceError: boom}, boom},
		{"disconnect", MockFailures{Disconnect: true}, ErrDisconnected},
		{"configure failed", MockFailures{Configure: boom}, ErrConfigureFailed},
		{"create session", MockFailures{CreateSession: boom}, ErrConfigureFailed},
		{"set repeating", MockFailures{SetRepeating: boom}, ErrConfigureFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newTestManager(t, WithFailures(tc.fail))
			var called atomic.Bool
			m.SetListener(func(*Frame) { called.Store(true) })

			require.NoError(t, m.Open(context.Background(), transform.FacingFront))

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			st, err := m.WaitFor(ctx, StateError)
			require.NoError(t, err)
			assert.Equal(t, StateError, st)
			assert.ErrorIs(t, m.LastError(), tc.want)
			assert.False(t, called.Load(), "no frames dispatched outside capturing")
		})
	}
}

func TestManager_WaitForReportsFailure(t *testing.T) {
	m, _ := newTestManager(t, WithFailures(MockFailures{Configure: errors.New("no stream")}))
	require.NoError(t, m.Open(context.Background(), transform.FacingFront))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := m.WaitFor(ctx, StateCapturing)
	assert.ErrorIs(t, err, ErrConfigureFailed)
}

func TestManager_TeardownOrder(t *testing.T) {
	m, hw := newTestManager(t)
	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)
	m.Close()

	calls := hw.Calls()
	want := []string{"stop_repeating", "abort_captures", "close_session", "close_device"}
	require.GreaterOrEqual(t, len(calls), len(want))
	assert.Equal(t, want, calls[len(calls)-len(want):])
}

func TestManager_TeardownContinuesOnErrors(t *testing.T) {
	boom := errors.New("hw")
	m, hw := newTestManager(t, WithFailures(MockFailures{
		StopRepeating: boom,
		AbortCaptures: boom,
		CloseSession:  boom,
	}))
	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)
	m.Close()

	assert.Contains(t, hw.Calls(), "close_device")
	assert.Equal(t, StateClosed, m.State())
}

func TestManager_CloseIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	m.Close()
	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)
	m.Close()
	m.Close()
	assert.Equal(t, StateClosed, m.State())
}

func TestManager_NoCallbackAfterClose(t *testing.T) {
	m, _ := newTestManager(t)

	var closed atomic.Bool
	var late atomic.Int64
	m.SetListener(func(*Frame) {
		if closed.Load() {
			late.Add(1)
		}
	})

	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)
	time.Sleep(20 * time.Millisecond)

	m.Close()
	closed.Store(true)
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, late.Load())
}

func TestManager_CloseBeforeFirstFrame(t *testing.T) {
	m, hw := newTestManager(t, WithInterval(time.Hour))
	var called atomic.Bool
	m.SetListener(func(*Frame) { called.Store(true) })

	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)
	m.Close()

	assert.False(t, called.Load())
	assert.Zero(t, hw.InFlight())
}

func TestManager_CloseWhileOpening(t *testing.T) {
	m, hw := newTestManager(t, WithFailures(MockFailures{NeverOpen: true}))
	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	assert.Equal(t, StateOpening, m.State())

	m.Close()
	assert.Equal(t, StateClosed, m.State())
	assert.NotContains(t, hw.Calls(), "close_device")
}

func TestManager_CloseDuringProcessing(t *testing.T) {
	m, hw := newTestManager(t)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var finished atomic.Bool
	var once sync.Once
	m.SetListener(func(f *Frame) {
		first := false
		once.Do(func() { first = true })
		if !first {
			return
		}
		close(entered)
		<-unblock
		finished.Store(true)
	})

	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	<-entered

	closeDone := make(chan struct{})
	go func() {
		m.Close()
		close(closeDone)
	}()

	select {
	case <-closeDone:
		t.Fatal("Close returned while a frame was still being processed")
	case <-time.After(20 * time.Millisecond):
	}

	close(unblock)
	select {
	case <-closeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after processing finished")
	}
	assert.True(t, finished.Load(), "in-flight frame drained before close")
	assert.Zero(t, hw.InFlight())
}

func TestManager_ReopenClosesPrevious(t *testing.T) {
	m, hw := newTestManager(t)
	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)
	first := m.SessionID()

	require.NoError(t, m.Open(context.Background(), transform.FacingBack))
	waitCapturing(t, m)

	assert.NotEqual(t, first, m.SessionID())
	assert.Equal(t, "mock-back", m.Descriptor().ID)
	assert.Contains(t, hw.Calls(), "close_device")
}

func TestManager_Switch(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)

	next, err := m.Switch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, transform.FacingBack, next)
	waitCapturing(t, m)
	assert.Equal(t, transform.FacingBack, m.Descriptor().Facing)
}

func TestManager_PoolBounded(t *testing.T) {
	m, hw := newTestManager(t)

	// Block the worker on the first frame so later frames pile up in the
	// queue holding pool slots.
	hold := make(chan struct{})
	m.SetListener(func(*Frame) { <-hold })

	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)

	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, hw.InFlight(), DefaultConfig().PoolDepth)

	close(hold)
	m.Close()
	assert.Zero(t, hw.InFlight())
}

func TestManager_UpdateConfig(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.UpdateConfig(map[string]interface{}{
		"preset": "vga",
		"format": "jpeg",
	}))
	cfg := m.Config()
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, frame.JPEG, cfg.Format)

	assert.Error(t, m.UpdateConfig(map[string]interface{}{"preset": "nope"}))
	assert.Error(t, m.UpdateConfig(map[string]interface{}{"width": float64(1)}))
}

func TestManager_ListenerPanicDoesNotStopWorker(t *testing.T) {
	m, _ := newTestManager(t)
	var n atomic.Int64
	m.SetListener(func(*Frame) {
		if n.Add(1) == 1 {
			panic("bad frame")
		}
	})
	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	assert.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, time.Millisecond)
}

func TestEvents_RejectAfterShutdown(t *testing.T) {
	ev := NewEvents(1)
	ev.shutdown()

	released := false
	f := NewFrame(1, time.Now(), 1, 1, frame.RGBA8888, nil, func() { released = true })
	assert.False(t, ev.Post(FrameAvailable{Frame: f}))
	assert.True(t, released, "rejected frame is released")
}

func TestStatus_JSONRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	// Before the first open nothing has been negotiated.
	closed := m.Status()
	data, err := json.Marshal(closed)
	require.NoError(t, err)
	var got Status
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, closed, got)
	assert.Equal(t, frame.FormatUnknown, got.Negotiated.Format)

	require.NoError(t, m.Open(context.Background(), transform.FacingFront))
	waitCapturing(t, m)

	open := m.Status()
	data, err = json.Marshal(open)
	require.NoError(t, err)
	got = Status{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, open.Camera.ID, got.Camera.ID)
	assert.Equal(t, open.Negotiated, got.Negotiated)
	assert.Equal(t, StateCapturing, got.State)
}
