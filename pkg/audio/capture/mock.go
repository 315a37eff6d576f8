package capture

import (
	"sync"

	"github.com/openhark/hark/pkg/audio"
)

// MockSource is an in-memory [Source] for tests. Frames pushed via Push are
// delivered to consumers in order; Stop closes the frame channel.
type MockSource struct {
	mu      sync.Mutex
	frames  chan audio.Frame
	started bool
	stopped bool

	// StartErr, when non-nil, is returned by Start to simulate a device
	// that cannot be opened.
	StartErr error
}

var _ Source = (*MockSource)(nil)

// NewMockSource returns a mock source with a queue of the given depth.
func NewMockSource(depth int) *MockSource {
	if depth <= 0 {
		depth = 64
	}
	return &MockSource{frames: make(chan audio.Frame, depth)}
}

// Start marks the source as running, or returns StartErr if set.
func (m *MockSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.started = true
	return nil
}

// Stop closes the frame channel. Safe to call multiple times.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.frames)
	}
	return nil
}

// Frames returns the frame channel.
func (m *MockSource) Frames() <-chan audio.Frame { return m.frames }

// Push enqueues a frame for delivery. Blocks if the queue is full.
func (m *MockSource) Push(f audio.Frame) { m.frames <- f }

// Started reports whether Start has been called successfully.
func (m *MockSource) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}
