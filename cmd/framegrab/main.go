// Framegrab - save frames from a running dms dashboard
//
// By default connects to /ws/camera and writes each JPEG frame to disk.
// With -snapshot it polls /api/frame.jpg instead, which works through
// proxies that do not pass websocket upgrades.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"image/jpeg"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-dms/internal/httpc"
	dmslog "github.com/teslashibe/go-dms/internal/log"
)

type grabber struct {
	dir    string
	count  int
	saved  int
	logger *slog.Logger
}

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "localhost:8080", "Dashboard host:port")
	out := flag.String("out", "frames", "Output directory")
	count := flag.Int("n", 30, "Number of frames to save, 0 for unlimited")
	timeout := flag.Duration("timeout", 10*time.Second, "Give up if no frame arrives for this long")
	snapshot := flag.Bool("snapshot", false, "Poll /api/frame.jpg instead of the websocket feed")
	interval := flag.Duration("interval", 500*time.Millisecond, "Poll interval in snapshot mode")
	flag.Parse()

	dmslog.Init(os.Getenv("DMS_LOG_LEVEL"))
	logger := dmslog.With("component", "framegrab")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g := &grabber{
		dir:    filepath.Join(*out, uuid.NewString()[:8]),
		count:  *count,
		logger: logger,
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		logger.Error("create output directory", "error", err)
		return 1
	}

	var err error
	if *snapshot {
		err = g.poll(ctx, *addr, *interval, *timeout)
	} else {
		err = g.stream(ctx, *addr, *timeout)
	}
	logger.Info("done", "saved", g.saved, "dir", g.dir)
	if err != nil && ctx.Err() == nil {
		logger.Error("framegrab failed", "error", err)
		return 1
	}
	return 0
}

func (g *grabber) done() bool { return g.count > 0 && g.saved >= g.count }

func (g *grabber) stream(ctx context.Context, addr string, timeout time.Duration) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/camera"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u.String(), err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	g.logger.Info("saving frames", "url", u.String(), "dir", g.dir, "count", g.count)

	for !g.done() {
		conn.SetReadDeadline(time.Now().Add(timeout))
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if err := g.save(data); err != nil {
			return err
		}
	}
	return nil
}

func (g *grabber) poll(ctx context.Context, addr string, interval, timeout time.Duration) error {
	u := url.URL{Scheme: "http", Host: addr, Path: "/api/frame.jpg"}
	g.logger.Info("polling snapshots", "url", u.String(), "dir", g.dir, "count", g.count)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []byte
	lastNew := time.Now()
	for !g.done() {
		data, _, err := httpc.GetBytes(ctx, u.String())
		var se *httpc.StatusError
		switch {
		case errors.As(err, &se) && se.Code == http.StatusNotFound:
			g.logger.Debug("no frame yet")
		case err != nil:
			return err
		case !bytes.Equal(data, last):
			if err := g.save(data); err != nil {
				return err
			}
			last = data
			lastNew = time.Now()
		}
		if time.Since(lastNew) > timeout {
			return fmt.Errorf("no new frame for %s", timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (g *grabber) save(data []byte) error {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		g.logger.Warn("skipping invalid frame", "bytes", len(data), "error", err)
		return nil
	}

	name := filepath.Join(g.dir, fmt.Sprintf("frame-%04d.jpg", g.saved))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	g.saved++
	g.logger.Debug("frame saved", "file", name, "width", cfg.Width, "height", cfg.Height)
	return nil
}
