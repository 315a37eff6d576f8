package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/openhark/hark/pkg/stt"
)

// ErrEngineNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested engine name.
var ErrEngineNotRegistered = errors.New("config: engine not registered")

// EngineFactory constructs an stt.Engine for one fallback slot. The slot
// name ("fast", "accurate", "cloud") becomes the engine's registry name so
// provenance in results reads by role rather than by implementation.
type EngineFactory func(slot string, entry ProviderEntry) (stt.Engine, error)

// Registry maps engine names to their constructor functions. The set of
// engines is fixed at startup by explicit registration; there is no plugin
// discovery. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]EngineFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]EngineFactory)}
}

// Register registers an engine factory under name. Subsequent calls with
// the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered engine names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	return out
}

// Create instantiates the engine for one fallback slot using the factory
// registered under entry.Name. An empty entry.Name yields a nil engine and
// no error: the slot is simply not populated. Returns
// [ErrEngineNotRegistered] when the name has no factory.
func (r *Registry) Create(slot string, entry ProviderEntry) (stt.Engine, error) {
	if entry.Name == "" {
		return nil, nil
	}
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrEngineNotRegistered, slot, entry.Name)
	}
	return factory(slot, entry)
}
