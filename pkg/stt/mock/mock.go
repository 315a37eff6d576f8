// Package mock provides a scripted stt.Engine for tests.
package mock

import (
	"context"
	"sync"

	"github.com/openhark/hark/pkg/stt"
)

// Engine is a scripted stt.Engine. It returns the configured text for every
// Recognize call and records each invocation. Safe for concurrent use.
type Engine struct {
	// EngineName is returned by Name. Defaults to "mock".
	EngineName string

	// Text is the transcript returned by every Recognize call.
	Text string

	// Confidence is the confidence hint attached to results.
	Confidence float64

	// Unavailable, when true, makes Available report false.
	Unavailable bool

	mu    sync.Mutex
	calls [][]byte
}

var _ stt.Engine = (*Engine)(nil)

// Name returns the configured engine name.
func (e *Engine) Name() string {
	if e.EngineName == "" {
		return "mock"
	}
	return e.EngineName
}

// Available reports the inverse of Unavailable.
func (e *Engine) Available() bool { return !e.Unavailable }

// Recognize records the call and returns the scripted text.
func (e *Engine) Recognize(_ context.Context, pcm []byte, _ int) stt.Result {
	e.mu.Lock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	e.calls = append(e.calls, buf)
	e.mu.Unlock()

	return stt.Result{
		Text:       e.Text,
		Engine:     e.Name(),
		Confidence: e.Confidence,
		Succeeded:  e.Text != "",
	}
}

// Calls returns the PCM buffers passed to Recognize, in order.
func (e *Engine) Calls() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.calls))
	copy(out, e.calls)
	return out
}

// CallCount returns the number of Recognize invocations.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}
