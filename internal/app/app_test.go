package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openhark/hark/internal/config"
	"github.com/openhark/hark/internal/history"
	"github.com/openhark/hark/internal/intent"
	"github.com/openhark/hark/pkg/audio"
	"github.com/openhark/hark/pkg/audio/capture"
	"github.com/openhark/hark/pkg/stt"
	"github.com/openhark/hark/pkg/stt/mock"
)

const testRate = 16000

// frame returns 100ms of synthetic PCM at the given peak amplitude.
func frame(amp int16) audio.Frame {
	n := testRate / 10
	data := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := amp
		if i%2 == 1 {
			s = -amp
		}
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return audio.Frame{Data: data, SampleRate: testRate}
}

func loud() audio.Frame   { return frame(4000) }
func silent() audio.Frame { return frame(10) }

// testAppConfig returns a config with short pipeline windows so tests run in
// milliseconds.
func testAppConfig() *config.Config {
	return &config.Config{
		Wake: config.WakeConfig{
			Phrases:     []string{"hey hark"},
			Sensitivity: 0.5,
		},
		Pipeline: config.PipelineConfig{
			CommandTimeout: 2 * time.Second,
			MaxUtterance:   500 * time.Millisecond,
			MinUtterance:   300 * time.Millisecond,
		},
	}
}

type fixture struct {
	app      *App
	source   *capture.MockSource
	fast     *mock.Engine
	store    *history.MemoryStore
	commands chan stt.Result
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()

	f := &fixture{
		source:   capture.NewMockSource(256),
		fast:     &mock.Engine{EngineName: "fast", Text: "hey hark turn on the lights"},
		store:    history.NewMemoryStore(),
		commands: make(chan stt.Result, 4),
	}

	a, err := New(context.Background(), cfg, &Engines{Fast: f.fast},
		WithSource(f.source),
		WithHistoryStore(f.store),
		WithHandler(intent.HandlerFunc(func(_ context.Context, r stt.Result) {
			f.commands <- r
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.app = a

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run: %v", err)
		}
	}()

	t.Cleanup(func() {
		cancel()
		shutdownCtx, sc := context.WithTimeout(context.Background(), 5*time.Second)
		defer sc()
		if err := a.Shutdown(shutdownCtx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return f
}

// speakWakeAndCommand pushes a wake utterance followed by a command long
// enough to hit the utterance cap.
func (f *fixture) speakWakeAndCommand() {
	for i := 0; i < 4; i++ {
		f.source.Push(loud())
	}
	for i := 0; i < 3; i++ {
		f.source.Push(silent())
	}
	for i := 0; i < 6; i++ {
		f.source.Push(loud())
	}
}

// TestApp_CommandFlow checks the end-to-end path: wake, command capture,
// recognition, intent parse, history record, handler invocation.
func TestApp_CommandFlow(t *testing.T) {
	f := newFixture(t, testAppConfig())

	f.speakWakeAndCommand()

	select {
	case r := <-f.commands:
		if r.Text != "hey hark turn on the lights" {
			t.Errorf("handler got %q", r.Text)
		}
		if r.Engine != "fast" {
			t.Errorf("provenance = %q, want fast", r.Engine)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
	}

	// The history entry is written before the handler runs.
	entries, err := f.store.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	if entries[0].Text != "hey hark turn on the lights" || entries[0].Intent == "" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

// TestApp_NoWakeNoCommand checks speech without a wake phrase is ignored.
func TestApp_NoWakeNoCommand(t *testing.T) {
	cfg := testAppConfig()
	cfg.Wake.Phrases = []string{"okay different phrase"}
	f := newFixture(t, cfg)

	f.speakWakeAndCommand()

	select {
	case r := <-f.commands:
		t.Fatalf("unexpected command %q", r.Text)
	case <-time.After(1 * time.Second):
	}
}

// TestApp_ApplyConfig checks a hot-reloaded wake phrase takes effect.
func TestApp_ApplyConfig(t *testing.T) {
	cfg := testAppConfig()
	cfg.Wake.Phrases = []string{"unmatchable"}
	f := newFixture(t, cfg)

	updated := testAppConfig()
	f.app.ApplyConfig(updated)

	f.speakWakeAndCommand()

	select {
	case <-f.commands:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command after config reload")
	}
}

// TestApp_MemoryStoreDefault checks New falls back to the in-memory store
// when no DSN is configured and no store is injected.
func TestApp_MemoryStoreDefault(t *testing.T) {
	a, err := New(context.Background(), testAppConfig(), &Engines{},
		WithSource(capture.NewMockSource(1)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := a.History().(*history.MemoryStore); !ok {
		t.Errorf("expected MemoryStore, got %T", a.History())
	}
}

// TestApp_ShutdownIdempotent checks Shutdown can be called repeatedly.
func TestApp_ShutdownIdempotent(t *testing.T) {
	a, err := New(context.Background(), testAppConfig(), &Engines{},
		WithSource(capture.NewMockSource(1)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
