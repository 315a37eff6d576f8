// Package app wires all Hark subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the event loop, and Shutdown tears everything
// down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithHistoryStore, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openhark/hark/internal/config"
	"github.com/openhark/hark/internal/history"
	"github.com/openhark/hark/internal/intent"
	"github.com/openhark/hark/internal/observe"
	"github.com/openhark/hark/internal/pipeline"
	"github.com/openhark/hark/internal/wake"
	"github.com/openhark/hark/pkg/audio/capture"
	"github.com/openhark/hark/pkg/stt"
)

// Engines holds one engine per fallback slot. Nil means the slot is not
// configured. Populated by main.go via the config registry.
type Engines struct {
	Fast     stt.Engine
	Accurate stt.Engine
	Cloud    stt.Engine
}

// App owns all subsystem lifetimes and orchestrates the Hark voice pipeline.
type App struct {
	cfg     *config.Config
	engines *Engines

	// Subsystems, initialised in New and torn down in Shutdown.
	source      capture.Source
	detector    *wake.Detector
	coordinator *stt.Coordinator
	pipe        *pipeline.Pipeline
	parser      *intent.Parser
	store       history.Store
	metrics     *observe.Metrics
	handler     intent.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects an audio source instead of opening the microphone.
func WithSource(s capture.Source) Option {
	return func(a *App) { a.source = s }
}

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics set instead of using the default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHandler registers a callback invoked with each recognised command.
func WithHandler(h intent.Handler) Option {
	return func(a *App) { a.handler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The engines struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, engines *Engines, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		engines: engines,
		parser:  intent.NewParser(),
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	a.initRecognition()
	a.initPipeline()

	return a, nil
}

// initHistory sets up the command history store: PostgreSQL when a DSN is
// configured, in-memory otherwise.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		a.store = history.NewMemoryStore()
		slog.Info("command history kept in memory")
		return nil
	}

	store, err := history.NewPostgresStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("command history stored in postgres")
	return nil
}

// initRecognition builds the wake detector and the fallback coordinator from
// the engine slots.
func (a *App) initRecognition() {
	wakeCfg := wake.Config{
		Phrases:     a.cfg.Wake.Phrases,
		Sensitivity: a.cfg.Wake.Sensitivity,
	}
	var wakeOpts []wake.Option
	if a.cfg.Pipeline.SilenceThreshold > 0 {
		wakeOpts = append(wakeOpts, wake.WithSilenceThreshold(a.cfg.Pipeline.SilenceThreshold))
	}
	a.detector = wake.New(a.wakeEngine(), wakeCfg, wakeOpts...)

	a.coordinator = stt.NewCoordinator(
		a.engines.Fast,
		a.engines.Accurate,
		a.engines.Cloud,
		stt.WithEscalationHook(func(from, to string) {
			a.metrics.RecordEscalation(context.Background(), from, to)
		}),
	)
}

// wakeEngine returns the engine backing the wake detector, selected by the
// wake.engine slot name. Defaults to the fast engine.
func (a *App) wakeEngine() stt.Engine {
	switch a.cfg.Wake.Engine {
	case "accurate":
		return a.engines.Accurate
	case "cloud":
		return a.engines.Cloud
	default:
		return a.engines.Fast
	}
}

// initPipeline creates the capture source (unless injected) and the
// interaction pipeline.
func (a *App) initPipeline() {
	if a.source == nil {
		a.source = capture.NewMic(capture.Config{
			SampleRate: a.cfg.Audio.SampleRate,
			ChunkSize:  a.cfg.Audio.ChunkSize,
			QueueDepth: a.cfg.Audio.QueueDepth,
			Device:     a.cfg.Audio.Device,
			OnDrop: func() {
				a.metrics.DroppedFrames.Add(context.Background(), 1)
			},
		})
	}

	a.pipe = pipeline.New(a.source, a.detector, a.coordinator, pipeline.Config{
		CommandTimeout:   a.cfg.Pipeline.CommandTimeout,
		MaxUtterance:     a.cfg.Pipeline.MaxUtterance,
		MinUtterance:     a.cfg.Pipeline.MinUtterance,
		SilenceThreshold: a.cfg.Pipeline.SilenceThreshold,
		EngineOverride:   a.cfg.Engines.Override,
	}, pipeline.WithMetrics(a.metrics))
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts audio capture and the interaction pipeline, then consumes
// pipeline events until ctx is cancelled. Each recognised command is parsed
// for intent, recorded in the history store, and handed to the registered
// handler.
func (a *App) Run(ctx context.Context) error {
	if err := a.source.Start(); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}
	if err := a.pipe.Start(); err != nil {
		_ = a.source.Stop()
		return fmt.Errorf("app: start pipeline: %w", err)
	}

	slog.Info("hark running",
		"engines", a.coordinator.String(),
		"wake_phrases", a.cfg.Wake.Phrases,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.consumeEvents(ctx)
	})
	return g.Wait()
}

// consumeEvents drains the pipeline's event channel until ctx is done.
func (a *App) consumeEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.pipe.Events():
			a.handleEvent(ctx, ev)
		}
	}
}

// handleEvent dispatches one pipeline event.
func (a *App) handleEvent(ctx context.Context, ev pipeline.Event) {
	switch ev.Kind {
	case pipeline.EventWake:
		slog.Debug("wake event", "at", ev.At)

	case pipeline.EventCommand:
		a.handleCommand(ctx, ev.Result)

	case pipeline.EventTimeout:
		slog.Info("command window timed out")

	case pipeline.EventError:
		slog.Warn("pipeline error", "err", ev.Err)
	}
}

// handleCommand parses the transcript for intent, records it, and invokes
// the handler.
func (a *App) handleCommand(ctx context.Context, r stt.Result) {
	it := a.parser.Parse(r.Text)
	slog.Info("command recognised",
		"text", r.Text,
		"engine", r.Engine,
		"intent", it.Name,
		"confidence", it.Confidence,
	)

	entry := history.Entry{
		Text:       r.Text,
		Engine:     r.Engine,
		Confidence: r.Confidence,
		Intent:     it.Name,
		At:         time.Now(),
	}
	if err := a.store.Record(ctx, entry); err != nil {
		slog.Warn("failed to record command", "err", err)
	}

	if a.handler != nil {
		a.handler.OnCommand(ctx, r)
	}
}

// ─── Runtime updates ─────────────────────────────────────────────────────────

// ApplyConfig applies a reloaded config to the running system. Only the wake
// section takes effect at runtime; other sections require a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.detector.UpdateConfig(wake.Config{
		Phrases:     cfg.Wake.Phrases,
		Sensitivity: cfg.Wake.Sensitivity,
	})
	slog.Info("wake configuration reloaded",
		"phrases", cfg.Wake.Phrases,
		"sensitivity", cfg.Wake.Sensitivity,
	)
}

// History returns the command history store.
func (a *App) History() history.Store { return a.store }

// Pipeline returns the interaction pipeline, mainly for state inspection.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipe }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if err := a.pipe.Stop(); err != nil {
			slog.Warn("pipeline stop error", "err", err)
		}
		if err := a.source.Stop(); err != nil {
			slog.Warn("capture stop error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
