// Package stt defines the speech-to-text engine contract and the
// recognition coordinator that combines several unreliable, heterogeneous
// engines into a single decision.
//
// Each backing recognizer (whisper.cpp, a local whisper-server, Deepgram,
// OpenAI) is wrapped in an adapter implementing [Engine]. Adapters never let
// internal failures escape: a model that failed to load, a network error, or
// a decode error all surface as an unavailable engine or a failed [Result],
// never as a panic or an error return across the boundary.
package stt

import "context"

// Engine is the uniform contract over one backing speech recognizer.
//
// Implementations must be safe for concurrent use. Recognize is synchronous
// and may block for the duration of inference; callers that need a bound
// should pass a context with a deadline.
type Engine interface {
	// Name returns the engine's registry name (e.g. "whisper-fast"). Used
	// for provenance and for explicit engine overrides.
	Name() string

	// Available reports whether the backing resource initialised
	// successfully. Unavailable engines are skipped by the coordinator
	// without being invoked.
	Available() bool

	// Recognize transcribes a complete utterance of 16-bit signed
	// little-endian mono PCM at the given sample rate. It never returns an
	// error: failures are reported as a Result with Succeeded=false and an
	// empty Text.
	Recognize(ctx context.Context, pcm []byte, sampleRate int) Result
}
