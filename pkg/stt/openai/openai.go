// Package openai provides a cloud stt.Engine backed by the OpenAI audio
// transcription API. It occupies the last slot of the fallback order: it is
// only consulted when both local engines produced an empty transcript.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/openhark/hark/pkg/audio"
	"github.com/openhark/hark/pkg/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// defaultTimeout bounds one transcription round-trip.
const defaultTimeout = 30 * time.Second

// Ensure Engine implements the stt.Engine interface.
var _ stt.Engine = (*Engine)(nil)

// config holds optional configuration for the engine.
type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Engine.
type Option func(*config)

// WithModel overrides the transcription model (default whisper-1).
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the default OpenAI API base URL, e.g. for an
// API-compatible local gateway.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Engine implements stt.Engine using the OpenAI transcription API.
type Engine struct {
	name      string
	model     string
	client    oai.Client
	available bool
}

// New creates an OpenAI transcription engine named name. An empty API key
// degrades the engine to unavailable instead of failing construction, so a
// machine without cloud credentials still gets the local fallback chain.
func New(name, apiKey string, opts ...Option) *Engine {
	cfg := &config{model: DefaultModel, timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	e := &Engine{name: name, model: cfg.model}
	if apiKey == "" {
		slog.Warn("openai engine has no API key; engine degraded to unavailable", "engine", name)
		return e
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	e.client = oai.NewClient(reqOpts...)
	e.available = true
	return e
}

// Name returns the engine's registry name.
func (e *Engine) Name() string { return e.name }

// Available reports whether an API key is configured.
func (e *Engine) Available() bool { return e.available }

// Recognize wraps the utterance in a WAV container and submits it for
// transcription. Failures are logged and surfaced as a failed Result.
func (e *Engine) Recognize(ctx context.Context, pcm []byte, sampleRate int) stt.Result {
	if !e.available {
		return stt.Failure(e.name)
	}

	text, err := e.transcribe(ctx, pcm, sampleRate)
	if err != nil {
		slog.Error("openai transcription failed", "engine", e.name, "err", err)
		return stt.Failure(e.name)
	}
	return stt.Result{Text: text, Engine: e.name, Succeeded: text != ""}
}

func (e *Engine) transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	wavData, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return "", fmt.Errorf("openai stt: encode wav: %w", err)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		Model: e.model,
		File:  oai.File(bytes.NewReader(wavData), "utterance.wav", "audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
