// Package deepgram provides a Deepgram-backed cloud stt.Engine using the
// Deepgram streaming WebSocket API.
//
// Although the API is a streaming one, the adapter exposes the batch
// Recognize contract: it dials a fresh session per utterance, streams the
// whole buffer, sends a CloseStream control message, and collects the final
// transcripts the server commits before closing. Utterances are capped at a
// few seconds by the pipeline, so per-call session setup is an acceptable
// cost for the fallback slot.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/openhark/hark/pkg/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// streamChunkBytes is the write granularity for audio frames. Deepgram
	// recommends chunks in the tens-of-milliseconds range.
	streamChunkBytes = 8192

	// sessionTimeout is the hard external bound on one recognition session,
	// deliberately longer than Deepgram's own endpointing timeouts so that
	// the server's result, not our deadline, normally ends the session.
	sessionTimeout = 20 * time.Second
)

// closeStreamMsg tells Deepgram that no more audio is coming and pending
// results should be flushed.
var closeStreamMsg = []byte(`{"type":"CloseStream"}`)

// Compile-time assertion that Engine satisfies stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithModel sets the Deepgram model (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(e *Engine) {
		if model != "" {
			e.model = model
		}
	}
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(e *Engine) {
		if language != "" {
			e.language = language
		}
	}
}

// Engine implements stt.Engine backed by the Deepgram streaming API.
type Engine struct {
	name     string
	apiKey   string
	model    string
	language string
}

// New creates a Deepgram engine named name. An empty API key degrades the
// engine to unavailable instead of failing construction.
func New(name, apiKey string, opts ...Option) *Engine {
	e := &Engine{
		name:     name,
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	if e.apiKey == "" {
		slog.Warn("deepgram engine has no API key; engine degraded to unavailable", "engine", name)
	}
	return e
}

// Name returns the engine's registry name.
func (e *Engine) Name() string { return e.name }

// Available reports whether an API key is configured.
func (e *Engine) Available() bool { return e.apiKey != "" }

// Recognize streams the utterance through a fresh Deepgram session and
// returns the concatenated final transcripts. Dial and mid-stream errors
// surface as a failed Result.
func (e *Engine) Recognize(ctx context.Context, pcm []byte, sampleRate int) stt.Result {
	if e.apiKey == "" {
		return stt.Failure(e.name)
	}

	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()

	text, confidence, err := e.transcribe(ctx, pcm, sampleRate)
	if err != nil {
		slog.Error("deepgram transcription failed", "engine", e.name, "err", err)
		return stt.Failure(e.name)
	}
	return stt.Result{Text: text, Engine: e.name, Confidence: confidence, Succeeded: text != ""}
}

// response is the subset of Deepgram's streaming JSON messages we consume.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (e *Engine) transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, float64, error) {
	wsURL, err := e.buildURL(sampleRate)
	if err != nil {
		return "", 0, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", 0, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Writer goroutine: stream the buffer, then signal end of audio. The
	// reader below consumes results concurrently so socket buffers never
	// back up.
	writeErr := make(chan error, 1)
	go func() {
		for off := 0; off < len(pcm); off += streamChunkBytes {
			end := min(off+streamChunkBytes, len(pcm))
			if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
				writeErr <- fmt.Errorf("deepgram: write audio: %w", err)
				return
			}
		}
		writeErr <- conn.Write(ctx, websocket.MessageText, closeStreamMsg)
	}()

	var (
		finals     []string
		confidence float64
	)

readLoop:
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// A normal closure after CloseStream ends the session; anything
			// before we saw a final is a real failure.
			if len(finals) > 0 && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				return "", 0, fmt.Errorf("deepgram: session timed out: %w", ctx.Err())
			}
			if websocket.CloseStatus(err) != -1 {
				break
			}
			return "", 0, fmt.Errorf("deepgram: read: %w", err)
		}

		var msg response
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("deepgram: skipping unparseable message", "err", err)
			continue
		}
		switch msg.Type {
		case "Results":
			if !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if t := strings.TrimSpace(alt.Transcript); t != "" {
				finals = append(finals, t)
				if alt.Confidence > confidence {
					confidence = alt.Confidence
				}
			}
		case "Metadata":
			// Sent once the server has flushed everything after CloseStream.
			break readLoop
		}
	}

	if err := <-writeErr; err != nil {
		return "", 0, err
	}
	return strings.Join(finals, " "), confidence, nil
}

// buildURL constructs the streaming endpoint URL for one session.
func (e *Engine) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", e.model)
	q.Set("language", e.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
