package pipeline

import (
	"sync"
	"time"
)

// StageTimes is how long each step of one frame took.
type StageTimes struct {
	Wrap    time.Duration `json:"wrap"`
	Rotate  time.Duration `json:"rotate"`
	Flip    time.Duration `json:"flip"`
	Process time.Duration `json:"process"`
	Draw    time.Duration `json:"draw"`
	Total   time.Duration `json:"total"`
}

const historySize = 100

// Metrics collects stage timings over recent frames.
// It is goroutine-safe.
type Metrics struct {
	mu      sync.Mutex
	last    StageTimes
	history []StageTimes
	next    int
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{history: make([]StageTimes, 0, historySize)}
}

// Record stores the timings of one frame.
func (m *Metrics) Record(st StageTimes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = st
	if len(m.history) < historySize {
		m.history = append(m.history, st)
		return
	}
	m.history[m.next] = st
	m.next = (m.next + 1) % historySize
}

// Last returns the timings of the most recent frame.
func (m *Metrics) Last() StageTimes {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Average returns mean timings over recent frames.
func (m *Metrics) Average() StageTimes {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if n == 0 {
		return StageTimes{}
	}

	var avg StageTimes
	for _, h := range m.history {
		avg.Wrap += h.Wrap
		avg.Rotate += h.Rotate
		avg.Flip += h.Flip
		avg.Process += h.Process
		avg.Draw += h.Draw
		avg.Total += h.Total
	}
	d := time.Duration(n)
	avg.Wrap /= d
	avg.Rotate /= d
	avg.Flip /= d
	avg.Process /= d
	avg.Draw /= d
	avg.Total /= d
	return avg
}

// Reset clears all recorded timings.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = StageTimes{}
	m.history = m.history[:0]
	m.next = 0
}
