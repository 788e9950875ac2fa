package yunet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-dms/pkg/frame"
)

// findModelDir looks for the model in the usual locations.
func findModelDir() string {
	for _, dir := range []string{"models", "../models", "../../models", "../../../models"} {
		if _, err := os.Stat(filepath.Join(dir, ModelFile)); err == nil {
			return dir
		}
	}
	return ""
}

func TestNew_InvalidPath(t *testing.T) {
	if _, err := New("/nonexistent/path/model.onnx", DefaultConfig()); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestFactory_MissingModel(t *testing.T) {
	if _, err := Factory(DefaultConfig())(t.TempDir()); err == nil {
		t.Error("Expected error for empty model directory")
	}
}

func TestProcess_BlankFrame(t *testing.T) {
	dir := findModelDir()
	if dir == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	b, err := Factory(DefaultConfig())(dir)
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}
	defer b.Destroy()

	// Padded stride exercises the repacking path.
	const w, h, stride = 320, 240, 320*4 + 64
	pix := make([]byte, stride*h)
	dets, err := b.Process(pix, w, h, stride)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("expected no faces in a black frame, got %d", len(dets))
	}
}

func TestProcess_ShortBuffer(t *testing.T) {
	dir := findModelDir()
	if dir == "" {
		t.Skip("YuNet model not found, skipping test")
	}
	b, err := Factory(DefaultConfig())(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	if _, err := b.Process(make([]byte, 10), 32, 32, 128); err != frame.ErrShortBuffer {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}
