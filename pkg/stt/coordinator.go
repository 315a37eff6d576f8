package stt

import (
	"context"
	"fmt"
	"log/slog"
)

// MinAcceptableTokens is the whitespace-token count below which a fast-engine
// transcript is treated as insufficient and escalated to the accurate engine.
// The value 3 is a documented tuning constant, not a learned threshold.
const MinAcceptableTokens = 3

// Coordinator runs the multi-engine fallback policy over a finished
// utterance buffer and returns one best transcript with provenance.
//
// The preference order is fixed: the fast local engine is tried first for
// latency; an empty or too-short transcript escalates to the accurate local
// engine; only when both local engines produce nothing is the cloud fallback
// invoked. Coordinator is read-only after construction and safe for
// concurrent use.
type Coordinator struct {
	fast     Engine
	accurate Engine
	cloud    Engine

	// onEscalate, when set, is invoked each time the policy moves past the
	// fast engine. Used for metrics.
	onEscalate func(from, to string)
}

// CoordinatorOption is a functional option for configuring a [Coordinator].
type CoordinatorOption func(*Coordinator)

// WithEscalationHook registers a callback invoked whenever the fallback
// policy escalates from one engine to the next.
func WithEscalationHook(fn func(from, to string)) CoordinatorOption {
	return func(c *Coordinator) { c.onEscalate = fn }
}

// NewCoordinator creates a Coordinator over the three engine slots. Any slot
// may be nil; nil and unavailable engines are skipped by the policy.
func NewCoordinator(fast, accurate, cloud Engine, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{fast: fast, accurate: accurate, cloud: cloud}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Engines returns the configured engines in preference order, nils excluded.
func (c *Coordinator) Engines() []Engine {
	out := make([]Engine, 0, 3)
	for _, e := range []Engine{c.fast, c.accurate, c.cloud} {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Recognize selects a transcript for the utterance by trying engines in the
// fixed preference order, short-circuiting on acceptance:
//
//  1. The fast engine's output is taken as a candidate, not a final answer.
//  2. An empty candidate, or one with fewer than [MinAcceptableTokens]
//     tokens, escalates to the accurate engine; a non-empty accurate result
//     replaces the candidate and takes provenance.
//  3. Only a still-empty candidate escalates to the cloud engine.
//  4. When every attempted engine returned empty text, the Result reports
//     Succeeded=false.
//
// Unavailable engines are skipped without being invoked.
func (c *Coordinator) Recognize(ctx context.Context, pcm []byte, sampleRate int) Result {
	var candidate Result

	if usable(c.fast) {
		candidate = c.fast.Recognize(ctx, pcm, sampleRate)
	}

	if (candidate.Text == "" || candidate.TokenCount() < MinAcceptableTokens) && usable(c.accurate) {
		c.escalated(candidate.Engine, c.accurate.Name())
		if r := c.accurate.Recognize(ctx, pcm, sampleRate); r.Text != "" {
			candidate = r
		}
	}

	if candidate.Text == "" && usable(c.cloud) {
		c.escalated(candidate.Engine, c.cloud.Name())
		if r := c.cloud.Recognize(ctx, pcm, sampleRate); r.Text != "" {
			candidate = r
		}
	}

	if candidate.Text == "" {
		slog.Debug("recognition produced no transcript", "last_engine", candidate.Engine)
		return Result{Engine: candidate.Engine}
	}
	candidate.Succeeded = true
	return candidate
}

// RecognizeWith bypasses the fallback order and invokes exactly the named
// engine. If that engine is not configured or unavailable, the call fails
// fast with Succeeded=false rather than substituting another engine; the
// caller explicitly opted out of fallback.
func (c *Coordinator) RecognizeWith(ctx context.Context, engineName string, pcm []byte, sampleRate int) Result {
	for _, e := range c.Engines() {
		if e.Name() != engineName {
			continue
		}
		if !e.Available() {
			slog.Warn("override engine is unavailable", "engine", engineName)
			return Failure(engineName)
		}
		r := e.Recognize(ctx, pcm, sampleRate)
		r.Succeeded = r.Text != ""
		return r
	}
	slog.Warn("override engine is not configured", "engine", engineName)
	return Failure(engineName)
}

func (c *Coordinator) escalated(from, to string) {
	if c.onEscalate != nil {
		c.onEscalate(from, to)
	}
}

// usable reports whether an engine slot can be invoked.
func usable(e Engine) bool {
	return e != nil && e.Available()
}

// String describes the coordinator's engine lineup, for startup logging.
func (c *Coordinator) String() string {
	name := func(e Engine) string {
		if e == nil {
			return "-"
		}
		if !e.Available() {
			return e.Name() + " (unavailable)"
		}
		return e.Name()
	}
	return fmt.Sprintf("fast=%s accurate=%s cloud=%s", name(c.fast), name(c.accurate), name(c.cloud))
}
