package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-dms/pkg/camera"
	"github.com/teslashibe/go-dms/pkg/frame"
	"github.com/teslashibe/go-dms/pkg/pipeline"
	"github.com/teslashibe/go-dms/pkg/transform"
)

type fixture struct {
	srv  *Server
	mgr  *camera.Manager
	pipe *pipeline.Pipeline
}

func newFixture(t *testing.T, snapshot func() []byte) fixture {
	t.Helper()
	hw := camera.NewMockHardware(nil, camera.WithInterval(5*time.Millisecond))
	mgr := camera.NewManager(hw, camera.DefaultConfig(), nil)
	t.Cleanup(mgr.Close)

	p := pipeline.New(frame.Software{}, nil, pipeline.Options{})
	mgr.OnOpened = p.Attach
	mgr.SetListener(p.HandleFrame)

	srv := NewServer(Options{
		Camera:         mgr,
		Pipeline:       p,
		Snapshot:       snapshot,
		StatusInterval: 10 * time.Millisecond,
	})
	return fixture{srv: srv, mgr: mgr, pipe: p}
}

func do(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func waitCapturing(t *testing.T, m *camera.Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := m.WaitFor(ctx, camera.StateCapturing)
	require.NoError(t, err)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)

	code, body := do(t, f.srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)

	var st struct {
		Camera   camera.Status  `json:"camera"`
		Pipeline pipeline.Stats `json:"pipeline"`
		Clients  map[string]int `json:"clients"`
	}
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, camera.StateClosed, st.Camera.State)
	assert.Contains(t, st.Clients, "camera")
}

func TestFacingOpensAndToggles(t *testing.T) {
	f := newFixture(t, nil)

	code, _ := do(t, f.srv, http.MethodPost, "/api/camera/facing", `{"facing":"back"}`)
	require.Equal(t, http.StatusOK, code)
	waitCapturing(t, f.mgr)
	assert.Equal(t, "mock-back", f.mgr.Descriptor().ID)

	code, _ = do(t, f.srv, http.MethodPost, "/api/camera/facing", `{"facing":"toggle"}`)
	require.Equal(t, http.StatusOK, code)
	waitCapturing(t, f.mgr)
	assert.Equal(t, "mock-front", f.mgr.Descriptor().ID)
	assert.Equal(t, transform.FacingFront, f.pipe.Inputs().Facing)

	code, _ = do(t, f.srv, http.MethodPost, "/api/camera/facing", `{"facing":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, f.srv, http.MethodPost, "/api/camera/close", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, camera.StateClosed, f.mgr.State())
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t, nil)

	code, body := do(t, f.srv, http.MethodPost, "/api/camera/config", `{"preset":"vga","format":"jpeg"}`)
	require.Equal(t, http.StatusOK, code, string(body))

	var cfg camera.Config
	require.NoError(t, json.Unmarshal(body, &cfg))
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, frame.JPEG, cfg.Format)

	code, _ = do(t, f.srv, http.MethodPost, "/api/camera/config", `{"width":-5}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, f.srv, http.MethodPost, "/api/camera/config", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, f.srv, http.MethodGet, "/api/camera/config", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestOrientation(t *testing.T) {
	f := newFixture(t, nil)
	f.pipe.Attach(camera.Descriptor{Facing: transform.FacingFront, SensorOrientation: 270}, camera.StreamConfig{})

	code, body := do(t, f.srv, http.MethodPost, "/api/orientation", `{"display_rotation":90}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, transform.Rotate180, f.pipe.Params().Rotation)
	assert.Contains(t, string(body), `"rotation":180`)

	code, _ = do(t, f.srv, http.MethodPost, "/api/orientation", `{"surface_rotation":3}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 270, f.pipe.Inputs().DisplayRotation)
	assert.Equal(t, transform.Rotate0, f.pipe.Params().Rotation)

	code, _ = do(t, f.srv, http.MethodPost, "/api/orientation", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFrameSnapshot(t *testing.T) {
	var latest []byte
	f := newFixture(t, func() []byte { return latest })

	code, _ := do(t, f.srv, http.MethodGet, "/api/frame.jpg", "")
	assert.Equal(t, http.StatusNotFound, code)

	latest = []byte{0xff, 0xd8, 0xff, 0xd9}
	code, body := do(t, f.srv, http.MethodGet, "/api/frame.jpg", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, latest, body)

	noSource := NewServer(Options{})
	code, _ = do(t, noSource, http.MethodGet, "/api/frame.jpg", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = do(t, noSource, http.MethodGet, "/api/camera/config", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestWebsocketUpgradeRequired(t *testing.T) {
	f := newFixture(t, nil)
	code, _ := do(t, f.srv, http.MethodGet, "/ws/camera", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

func TestWebsocketFeeds(t *testing.T) {
	f := newFixture(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	base := "ws://" + ln.Addr().String()

	status, _, err := websocket.DefaultDialer.Dial(base+"/ws/status", nil)
	require.NoError(t, err)
	defer status.Close()

	status.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := status.ReadMessage()
	require.NoError(t, err)
	var env struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "status", env.Type)

	cam, _, err := websocket.DefaultDialer.Dial(base+"/ws/camera", nil)
	require.NoError(t, err)
	defer cam.Close()

	require.Eventually(t, func() bool { return f.srv.CameraHub().ClientCount() == 1 }, 2*time.Second, time.Millisecond)
	f.srv.CameraHub().BroadcastBinary([]byte{0xff, 0xd8})

	cam.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := cam.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	assert.Equal(t, []byte{0xff, 0xd8}, data)
}

func TestOpenErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"no device", camera.ErrNoDevice, http.StatusNotFound},
		{"access", &camera.AccessError{Op: "open", Err: errors.New("busy")}, http.StatusForbidden},
		{"closed", fmt.Errorf("wait: %w", camera.ErrClosed), http.StatusConflict},
		{"disconnected", camera.ErrDisconnected, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var fe *fiber.Error
			require.True(t, errors.As(openError(tc.err), &fe))
			assert.Equal(t, tc.code, fe.Code)
		})
	}

	other := errors.New("boom")
	assert.Equal(t, other, openError(other))
}
