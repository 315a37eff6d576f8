// Package pipeline drives the wake-word-gated interaction state machine.
//
// A single processing goroutine owns the state and the utterance buffer, so
// neither needs a lock: frames arrive through the capture queue, wake
// detection and utterance buffering happen inline, and recognition runs
// synchronously in the same goroutine. Everything the outside world learns
// about a cycle arrives as exactly one Event on the Events channel.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openhark/hark/internal/observe"
	"github.com/openhark/hark/internal/wake"
	"github.com/openhark/hark/pkg/audio"
	"github.com/openhark/hark/pkg/audio/capture"
	"github.com/openhark/hark/pkg/stt"
)

// State is the interaction state of the pipeline.
type State int32

const (
	// StateIdle: frames feed the wake detector only.
	StateIdle State = iota

	// StateListening: frames accumulate into the utterance buffer until a
	// stop condition fires.
	StateListening
)

// String returns the state name, for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening_for_command"
	default:
		return "unknown"
	}
}

// Recognizer is the slice of the stt.Coordinator surface the pipeline needs.
type Recognizer interface {
	Recognize(ctx context.Context, pcm []byte, sampleRate int) stt.Result
	RecognizeWith(ctx context.Context, engineName string, pcm []byte, sampleRate int) stt.Result
}

// Config tunes the state machine. The defaults carry the calibrated values
// of the interaction policy; tests shrink them to keep runs fast.
type Config struct {
	// CommandTimeout is the window after a wake in which a command must
	// complete. Default 10s.
	CommandTimeout time.Duration

	// MaxUtterance is the hard cap on the utterance buffer; reaching it
	// forces recognition regardless of silence. Default 5s.
	MaxUtterance time.Duration

	// MinUtterance is the minimum buffered audio before trailing silence
	// may end the utterance. Default 2s.
	MinUtterance time.Duration

	// SilenceThreshold is the peak-amplitude silence gate. Default
	// audio.DefaultSilenceThreshold.
	SilenceThreshold int

	// FrameWait bounds how long one cycle waits for a frame, so timeout
	// conditions re-check even when no audio arrives. Default 100ms.
	FrameWait time.Duration

	// EngineOverride, when set, names the single engine to use instead of
	// the fallback order.
	EngineOverride string
}

func (c Config) withDefaults() Config {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = 5 * time.Second
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = 2 * time.Second
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = audio.DefaultSilenceThreshold
	}
	if c.FrameWait <= 0 {
		c.FrameWait = 100 * time.Millisecond
	}
	return c
}

// stopGrace bounds how long Stop waits for the loop to exit.
const stopGrace = 2 * time.Second

// Pipeline is the wake-gated interaction loop. Create with New, Start to
// run, consume Events, Stop to halt. A stopped pipeline can be started
// again; the Events channel stays valid across restarts.
type Pipeline struct {
	source   capture.Source
	rec      Recognizer
	detector *wake.Detector
	cfg      Config
	metrics  *observe.Metrics

	events chan Event
	state  atomic.Int32

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Loop-owned; touched only by the processing goroutine.
	buf         []byte
	sampleRate  int
	listenStart time.Time
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithMetrics attaches metric instruments. Without it the pipeline runs
// unmetered.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline consuming frames from source, detecting wake
// phrases with detector and recognising finished utterances with rec.
func New(source capture.Source, detector *wake.Detector, rec Recognizer, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:   source,
		detector: detector,
		rec:      rec,
		cfg:      cfg.withDefaults(),
		events:   make(chan Event, 16),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Events returns the channel carrying all pipeline notifications. The same
// channel is reused across restarts and is never closed.
func (p *Pipeline) Events() <-chan Event { return p.events }

// State returns the current interaction state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Start launches the processing goroutine. It fails if the pipeline is
// already running.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("pipeline: already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.state.Store(int32(StateIdle))

	go p.loop(ctx, p.done)
	return nil
}

// Stop halts the processing goroutine and waits for it to exit. Idempotent:
// stopping a stopped pipeline is a no-op. Stop never deadlocks against an
// in-flight recognition; the loop finishes its current cycle first.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
		return errors.New("pipeline: loop did not stop in time")
	}
}

func (p *Pipeline) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if p.metrics != nil {
		p.metrics.ActivePipelines.Add(ctx, 1)
		defer p.metrics.ActivePipelines.Add(context.Background(), -1)
	}

	p.buf = p.buf[:0]
	frames := p.source.Frames()
	timer := time.NewTimer(p.cfg.FrameWait)
	defer timer.Stop()

	for {
		timer.Reset(p.cfg.FrameWait)

		var frame *audio.Frame
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				p.toIdle()
				p.emit(ctx, Event{Kind: EventError, Err: ErrCaptureClosed, At: time.Now()})
				return
			}
			frame = &f
		case <-timer.C:
			// No audio this cycle; timeout conditions still re-check.
		}

		p.cycle(ctx, frame)
	}
}

// cycle advances the state machine by one step: at most one frame in, at
// most one event out.
func (p *Pipeline) cycle(ctx context.Context, frame *audio.Frame) {
	switch p.State() {
	case StateIdle:
		if frame == nil || p.detector == nil {
			return
		}
		if !p.detector.ProcessFrame(ctx, *frame) {
			return
		}
		p.buf = p.buf[:0]
		p.sampleRate = frame.SampleRate
		p.listenStart = time.Now()
		p.state.Store(int32(StateListening))
		if p.metrics != nil {
			p.metrics.WakeDetections.Add(ctx, 1)
		}
		observe.Logger(ctx).Info("wake phrase detected, listening for command")
		p.emit(ctx, Event{Kind: EventWake, At: time.Now()})

	case StateListening:
		// Timeout wins over every buffer condition.
		if time.Since(p.listenStart) >= p.cfg.CommandTimeout {
			p.toIdle()
			if p.metrics != nil {
				p.metrics.RecordCommandOutcome(ctx, "timeout")
			}
			observe.Logger(ctx).Info("command window expired")
			p.emit(ctx, Event{Kind: EventTimeout, At: time.Now()})
			return
		}

		silent := false
		if frame != nil {
			p.buf = append(p.buf, frame.Data...)
			p.sampleRate = frame.SampleRate
			silent = audio.IsSilence(frame.Data, p.cfg.SilenceThreshold)
		}

		buffered := audio.PCMDuration(len(p.buf), p.sampleRate)
		if buffered >= p.cfg.MaxUtterance || (buffered >= p.cfg.MinUtterance && frame != nil && silent) {
			p.finishCommand(ctx)
		}
	}
}

// finishCommand recognises the buffered utterance synchronously, returns to
// idle and emits the command or error event.
func (p *Pipeline) finishCommand(ctx context.Context) {
	utterance := p.buf
	rate := p.sampleRate

	ctx, span := observe.StartSpan(ctx, "pipeline.recognize")
	defer span.End()

	start := time.Now()
	var r stt.Result
	if p.cfg.EngineOverride != "" {
		r = p.rec.RecognizeWith(ctx, p.cfg.EngineOverride, utterance, rate)
	} else {
		r = p.rec.Recognize(ctx, utterance, rate)
	}
	elapsed := time.Since(start)

	p.toIdle()

	engine := r.Engine
	if engine == "" {
		engine = "none"
	}
	if p.metrics != nil {
		p.metrics.RecordRecognition(ctx, engine, elapsed, r.Succeeded)
	}

	if !r.Succeeded {
		if p.metrics != nil {
			p.metrics.RecordCommandOutcome(ctx, "error")
		}
		observe.Logger(ctx).Warn("command recognition failed", "engine", engine, "duration", elapsed)
		p.emit(ctx, Event{Kind: EventError, Err: ErrRecognitionFailed, At: time.Now()})
		return
	}

	if p.metrics != nil {
		p.metrics.RecordCommandOutcome(ctx, "command")
	}
	observe.Logger(ctx).Info("command recognised",
		"engine", r.Engine, "transcript", r.Text, "duration", elapsed)
	p.emit(ctx, Event{Kind: EventCommand, Result: r, At: time.Now()})
}

// toIdle clears the utterance buffer and returns to idle. The buffer is
// never non-empty outside the listening state.
func (p *Pipeline) toIdle() {
	p.buf = p.buf[:0]
	p.state.Store(int32(StateIdle))
}

// emit delivers one event, giving up if the pipeline is being stopped and
// the consumer is gone.
func (p *Pipeline) emit(ctx context.Context, ev Event) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}
