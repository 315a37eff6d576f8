// Package history records recognised commands so later interactions can look
// back at what was said. A Postgres-backed store is used when a DSN is
// configured; the in-memory store covers tests and DSN-less runs.
package history

import (
	"context"
	"sync"
	"time"
)

// Entry is one recognised command.
type Entry struct {
	// Text is the recognised transcript.
	Text string

	// Engine is the engine that produced the transcript.
	Engine string

	// Confidence is the engine's confidence hint, 0 when not provided.
	Confidence float64

	// Intent is the classified intent name.
	Intent string

	// At is when the command finished recognition.
	At time.Time
}

// Store persists command history.
type Store interface {
	// Record appends one entry.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
}

// memoryLimit caps the in-memory ring so unbounded runs cannot grow forever.
const memoryLimit = 1000

// MemoryStore is an in-memory Store. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends e, discarding the oldest entry past the capacity limit.
func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > memoryLimit {
		s.entries = s.entries[len(s.entries)-memoryLimit:]
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *MemoryStore) Recent(_ context.Context, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(s.entries) - 1; i >= len(s.entries)-n; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
