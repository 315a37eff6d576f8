// Package whisperserver provides an stt.Engine that talks to a running
// whisper-server binary (the whisper.cpp example server, REST API at
// POST /inference). It is an alternative accurate-local engine for machines
// that keep a large model resident in a separate process instead of loading
// it in-process through CGO.
package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/openhark/hark/pkg/audio"
	"github.com/openhark/hark/pkg/stt"
)

const (
	defaultLanguage = "en"

	// requestTimeout bounds a single inference round-trip. Slightly longer
	// than any sensible server-side inference over a ≤5 s utterance.
	requestTimeout = 30 * time.Second
)

// Compile-time assertion that Engine satisfies stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the language hint forwarded to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// Engine implements stt.Engine against a whisper-server endpoint.
type Engine struct {
	name       string
	serverURL  string
	language   string
	httpClient *http.Client
}

// New creates an engine named name that submits inference requests to the
// whisper-server at serverURL (e.g. "http://localhost:8080"). An empty URL
// degrades the engine to unavailable rather than failing construction.
func New(name, serverURL string, opts ...Option) *Engine {
	e := &Engine{
		name:       name,
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	if e.serverURL == "" {
		slog.Warn("whisper-server engine has no base URL; engine degraded to unavailable", "engine", name)
	}
	return e
}

// Name returns the engine's registry name.
func (e *Engine) Name() string { return e.name }

// Available reports whether a server URL is configured. Connectivity is only
// discovered on use; a down server surfaces as failed results.
func (e *Engine) Available() bool { return e.serverURL != "" }

// Recognize encodes the utterance as WAV and submits it to the server's
// /inference endpoint. All failures are absorbed into a failed Result.
func (e *Engine) Recognize(ctx context.Context, pcm []byte, sampleRate int) stt.Result {
	if e.serverURL == "" {
		return stt.Failure(e.name)
	}

	text, err := e.infer(ctx, pcm, sampleRate)
	if err != nil {
		slog.Error("whisper-server inference failed", "engine", e.name, "err", err)
		return stt.Failure(e.name)
	}
	return stt.Result{Text: text, Engine: e.name, Succeeded: text != ""}
}

// inferenceResponse is the JSON body returned by whisper-server.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// infer POSTs the WAV-wrapped utterance as multipart/form-data and returns
// the transcribed text.
func (e *Engine) infer(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	wavData, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("whisperserver: create form file: %w", err)
	}
	if _, err := fw.Write(wavData); err != nil {
		return "", fmt.Errorf("whisperserver: write wav data: %w", err)
	}
	if e.language != "" {
		if err := mw.WriteField("language", e.language); err != nil {
			return "", fmt.Errorf("whisperserver: write language field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisperserver: write response_format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisperserver: finalise multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisperserver: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisperserver: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whisperserver: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisperserver: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("whisperserver: decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", errors.New("whisperserver: " + parsed.Error)
	}
	return strings.TrimSpace(parsed.Text), nil
}
