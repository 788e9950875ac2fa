package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", &buf, true)
	l.Info("hidden")
	l.Warn("shown", "camera", "mock-front")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["camera"] != "mock-front" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New("debug", &buf, false).Debug("frame processed", "seq", 7)
	if !strings.Contains(buf.String(), "seq=7") {
		t.Errorf("text output missing attribute: %q", buf.String())
	}
}

func TestWith_UsesGlobalLogger(t *testing.T) {
	Init("info")
	l := With("component", "test")
	if l == nil {
		t.Fatal("With returned nil")
	}
	if !l.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("derived logger should log at the global level")
	}
}
