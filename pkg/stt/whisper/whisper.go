// Package whisper provides an stt.Engine backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The same adapter fills both local engine slots of the fallback policy:
// pointed at a tiny model it is the low-latency fast engine, pointed at a
// larger model it is the accurate engine. The model is loaded once at
// construction and shared across calls; each Recognize creates its own
// whisper context, so concurrent calls do not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/openhark/hark/pkg/audio"
	"github.com/openhark/hark/pkg/stt"
)

const defaultLanguage = "en"

// Compile-time assertion that Engine satisfies stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the BCP-47 language code for transcription (e.g. "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// Engine implements stt.Engine using whisper.cpp.
type Engine struct {
	name     string
	language string
	model    whisperlib.Model
}

// New creates a whisper.cpp engine named name, loading the model from
// modelPath. A missing or unloadable model does not fail construction: the
// engine is returned in a degraded state where Available reports false and
// the coordinator skips it. This keeps the pipeline constructible even when
// a model file is absent.
func New(name, modelPath string, opts ...Option) *Engine {
	e := &Engine{name: name, language: defaultLanguage}
	for _, o := range opts {
		o(e)
	}

	if modelPath == "" {
		slog.Warn("whisper engine has no model path; engine degraded to unavailable", "engine", name)
		return e
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		slog.Warn("whisper model failed to load; engine degraded to unavailable",
			"engine", name, "model", modelPath, "err", err)
		return e
	}
	e.model = model
	return e
}

// Name returns the engine's registry name.
func (e *Engine) Name() string { return e.name }

// Available reports whether the model loaded successfully.
func (e *Engine) Available() bool { return e.model != nil }

// Close releases the whisper model. The engine is unavailable afterwards.
func (e *Engine) Close() error {
	if e.model == nil {
		return nil
	}
	model := e.model
	e.model = nil
	return model.Close()
}

// Recognize runs batch inference over the utterance. Internal failures are
// logged and surfaced as a failed Result, never returned as an error.
func (e *Engine) Recognize(ctx context.Context, pcm []byte, sampleRate int) stt.Result {
	if e.model == nil {
		return stt.Failure(e.name)
	}
	if err := ctx.Err(); err != nil {
		return stt.Failure(e.name)
	}

	text, err := e.infer(audio.PCMToFloat32(pcm))
	if err != nil {
		slog.Error("whisper inference failed", "engine", e.name, "err", err)
		return stt.Failure(e.name)
	}
	return stt.Result{Text: text, Engine: e.name, Succeeded: text != ""}
}

// infer runs whisper.cpp over normalised float32 samples using a fresh
// context. Contexts are not thread-safe but the model is shareable, so every
// call gets its own.
func (e *Engine) infer(samples []float32) (string, error) {
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("whisper: failed to set language, using model default",
			"engine", e.name, "language", e.language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
