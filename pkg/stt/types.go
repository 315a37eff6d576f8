package stt

import "strings"

// Result represents the outcome of one recognition attempt over a complete
// utterance buffer. A Result is immutable once constructed.
type Result struct {
	// Text is the transcribed speech content. Empty when recognition failed.
	Text string

	// Engine names the engine that produced Text (provenance). Empty when no
	// engine produced usable output.
	Engine string

	// Confidence is a hint in [0.0, 1.0]. Engines that do not report
	// confidence leave it at zero.
	Confidence float64

	// Succeeded is true when Text is a usable transcript.
	Succeeded bool
}

// TokenCount returns the number of whitespace-separated tokens in the result
// text. Used by the fallback policy to judge whether a fast-engine transcript
// is substantial enough to accept.
func (r Result) TokenCount() int {
	return len(strings.Fields(r.Text))
}

// Failure returns a failed Result attributed to the named engine.
func Failure(engine string) Result {
	return Result{Engine: engine}
}
