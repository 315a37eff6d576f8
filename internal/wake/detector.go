// Package wake implements wake-phrase detection over the live frame stream.
//
// The detector is an energy-gated accumulator: frames with speech energy are
// collected into a short utterance buffer, a run of silent frames finalises
// the buffer, and the finalised utterance is transcribed with the fast local
// engine and matched against the configured phrases. Wake utterances are
// short by nature, so buffers that grow past a couple of seconds are
// discarded without transcription.
package wake

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/openhark/hark/pkg/audio"
	"github.com/openhark/hark/pkg/stt"
)

const (
	// minUtterance is the shortest buffer worth transcribing. Anything
	// shorter is a click or a breath, not a phrase.
	minUtterance = 300 * time.Millisecond

	// maxUtterance caps the accumulator. Wake phrases are short; longer
	// speech is conversation and is discarded untranscribed.
	maxUtterance = 2 * time.Second

	// silenceRun is the amount of trailing silence that finalises a phrase.
	silenceRun = 300 * time.Millisecond
)

// Detector accumulates speech frames and tests finalised short utterances
// against the wake configuration.
//
// ProcessFrame must be called from a single goroutine (the pipeline loop).
// UpdateConfig may be called concurrently from any goroutine; the detector
// loads one config snapshot per finalised utterance.
type Detector struct {
	engine           stt.Engine
	silenceThreshold int

	cfg atomic.Pointer[Config]

	buf        []byte
	sampleRate int
	inSpeech   bool
	silence    time.Duration
}

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithSilenceThreshold overrides the amplitude level that separates speech
// frames from silent ones. Defaults to audio.DefaultSilenceThreshold.
func WithSilenceThreshold(threshold int) Option {
	return func(d *Detector) {
		if threshold > 0 {
			d.silenceThreshold = threshold
		}
	}
}

// New creates a Detector transcribing with engine (normally the fast local
// engine slot) under the given initial configuration.
func New(engine stt.Engine, cfg Config, opts ...Option) *Detector {
	d := &Detector{
		engine:           engine,
		silenceThreshold: audio.DefaultSilenceThreshold,
	}
	for _, o := range opts {
		o(d)
	}
	d.UpdateConfig(cfg)
	return d
}

// UpdateConfig atomically replaces the wake configuration. Safe to call
// while the detector is processing frames.
func (d *Detector) UpdateConfig(cfg Config) {
	n := cfg.normalized()
	d.cfg.Store(&n)
}

// Snapshot returns the current normalised configuration.
func (d *Detector) Snapshot() Config {
	return *d.cfg.Load()
}

// ProcessFrame feeds one captured frame into the accumulator and reports
// whether a wake phrase was detected. At most one detection fires per
// finalised utterance and the detector is ready again on the next frame.
//
// When the backing engine is nil or unavailable the detector degrades
// silently: buffers are still tracked and discarded, but nothing is
// transcribed and ProcessFrame always reports false.
func (d *Detector) ProcessFrame(ctx context.Context, f audio.Frame) bool {
	silent := audio.IsSilence(f.Data, d.silenceThreshold)

	if !silent {
		if !d.inSpeech {
			d.inSpeech = true
			d.buf = d.buf[:0]
			d.sampleRate = f.SampleRate
		}
		d.buf = append(d.buf, f.Data...)
		d.silence = 0
		if d.buffered() > maxUtterance {
			d.reset()
		}
		return false
	}

	if !d.inSpeech {
		return false
	}

	// Trailing silence still belongs to the utterance until it finalises.
	d.buf = append(d.buf, f.Data...)
	d.silence += f.Duration()
	if d.silence < silenceRun {
		return false
	}

	utterance := d.buf
	rate := d.sampleRate
	tooShort := d.buffered() < minUtterance
	d.reset()

	if tooShort || d.engine == nil || !d.engine.Available() {
		return false
	}

	r := d.engine.Recognize(ctx, utterance, rate)
	if !r.Succeeded {
		return false
	}

	cfg := d.cfg.Load()
	if matches(r.Text, *cfg) {
		slog.Debug("wake phrase detected", "transcript", r.Text, "engine", r.Engine)
		return true
	}
	return false
}

// buffered returns the play length of the accumulated utterance.
func (d *Detector) buffered() time.Duration {
	return audio.PCMDuration(len(d.buf), d.sampleRate)
}

func (d *Detector) reset() {
	d.buf = d.buf[:0]
	d.inSpeech = false
	d.silence = 0
}
