package vision

import (
	"sync"
	"sync/atomic"
)

// MockBackend returns canned detections. It is used by tests and by the
// demo binary when no model is installed.
type MockBackend struct {
	Detections []Detection
	Err        error

	calls     atomic.Int64
	destroyed atomic.Int64

	mu       sync.Mutex
	lastSize [3]int
}

// NewMockBackend returns a backend reporting one centered face.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Detections: []Detection{{X: 0.35, Y: 0.3, W: 0.3, H: 0.4, Confidence: 0.9}},
	}
}

// Process implements Backend.
func (m *MockBackend) Process(pix []byte, width, height, stride int) ([]Detection, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.lastSize = [3]int{width, height, stride}
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]Detection(nil), m.Detections...), nil
}

// Destroy implements Backend.
func (m *MockBackend) Destroy() { m.destroyed.Add(1) }

// Calls returns the number of Process calls.
func (m *MockBackend) Calls() int { return int(m.calls.Load()) }

// Destroyed returns the number of Destroy calls.
func (m *MockBackend) Destroyed() int { return int(m.destroyed.Load()) }

// LastSize returns width, height and stride of the last processed frame.
func (m *MockBackend) LastSize() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSize[0], m.lastSize[1], m.lastSize[2]
}

// MockFactory returns a Factory that always yields b.
func MockFactory(b *MockBackend) Factory {
	return func(string) (Backend, error) { return b, nil }
}
