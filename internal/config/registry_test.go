package config

import (
	"errors"
	"slices"
	"testing"

	"github.com/openhark/hark/pkg/stt"
	"github.com/openhark/hark/pkg/stt/mock"
)

// TestRegistry_Create checks factory lookup and slot naming.
func TestRegistry_Create(t *testing.T) {
	r := NewRegistry()
	r.Register("mock", func(slot string, entry ProviderEntry) (stt.Engine, error) {
		return &mock.Engine{EngineName: slot, Text: "hello"}, nil
	})

	eng, err := r.Create("fast", ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if eng.Name() != "fast" {
		t.Errorf("engine name = %q, want slot name %q", eng.Name(), "fast")
	}
}

// TestRegistry_EmptyNameYieldsNil checks that an unconfigured slot produces
// no engine and no error.
func TestRegistry_EmptyNameYieldsNil(t *testing.T) {
	r := NewRegistry()
	eng, err := r.Create("cloud", ProviderEntry{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if eng != nil {
		t.Errorf("expected nil engine for empty name, got %v", eng)
	}
}

// TestRegistry_Unregistered checks the sentinel error for unknown names.
func TestRegistry_Unregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("fast", ProviderEntry{Name: "no-such-engine"})
	if !errors.Is(err, ErrEngineNotRegistered) {
		t.Fatalf("expected ErrEngineNotRegistered, got %v", err)
	}
}

// TestRegistry_Names checks that registered names are reported.
func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register("a", func(string, ProviderEntry) (stt.Engine, error) { return nil, nil })
	r.Register("b", func(string, ProviderEntry) (stt.Engine, error) { return nil, nil })

	names := r.Names()
	slices.Sort(names)
	if !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("Names() = %v", names)
	}
}

// TestRegistry_FactoryError checks that factory errors propagate.
func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	wantErr := errors.New("model file missing")
	r.Register("broken", func(string, ProviderEntry) (stt.Engine, error) {
		return nil, wantErr
	})

	_, err := r.Create("accurate", ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected factory error, got %v", err)
	}
}
