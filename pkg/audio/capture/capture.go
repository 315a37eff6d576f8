// Package capture provides microphone audio sources for the voice pipeline.
//
// The primary implementation is [Mic], backed by PortAudio. It runs a
// dedicated capture goroutine that reads fixed-size PCM frames from the input
// device and hands them to the consumer through a bounded queue. The queue is
// the only concurrency-safe hand-off between the capture context and the
// pipeline's processing context; under sustained overflow it drops the oldest
// queued frame so that fresh audio is never stalled behind stale audio.
//
// A [MockSource] is provided for tests that need deterministic frame
// sequences without an audio device.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/openhark/hark/pkg/audio"
)

const (
	// defaultQueueDepth bounds the frame queue. At 16 kHz mono with
	// 1024-sample frames this is roughly four seconds of audio.
	defaultQueueDepth = 64

	// stopGrace is how long Stop waits for the capture goroutine to exit
	// before giving up and returning anyway.
	stopGrace = 2 * time.Second

	// maxConsecutiveReadErrors is the number of back-to-back device read
	// failures after which the capture loop treats the device as dead.
	// Isolated transients are logged and skipped.
	maxConsecutiveReadErrors = 10
)

// Source is a producer of PCM audio frames.
//
// Start opens the underlying device and begins pushing frames into the queue
// returned by Frames. Stop signals the capture loop to exit and joins it
// within a fixed grace period; it is idempotent. The Frames channel is closed
// when the capture loop exits, whether by Stop or by device failure.
type Source interface {
	Start() error
	Stop() error
	Frames() <-chan audio.Frame
}

// Config holds the capture parameters for a [Mic].
type Config struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int

	// ChunkSize is the number of samples per frame. Defaults to 1024.
	ChunkSize int

	// QueueDepth bounds the frame queue. Defaults to 64 frames.
	QueueDepth int

	// Device selects the input device by case-insensitive name substring.
	// Empty uses the system default input device.
	Device string

	// OnDrop, when set, is invoked once for every frame evicted under queue
	// overflow. Called from the capture goroutine; must not block.
	OnDrop func()
}

// Mic is a PortAudio-backed [Source] reading from the default input device.
// It is restartable: after Stop returns, Start may be called again.
//
// All methods are safe for concurrent use.
type Mic struct {
	sampleRate int
	chunkSize  int
	queueDepth int
	device     string
	onDrop     func()

	mu      sync.Mutex
	running bool
	frames  chan audio.Frame
	stop    chan struct{}
	done    chan struct{}

	dropped atomic.Uint64
}

// Compile-time assertion that Mic satisfies Source.
var _ Source = (*Mic)(nil)

// NewMic creates a microphone source with the given config. Zero-value
// fields fall back to defaults; the device itself is not touched until Start.
func NewMic(cfg Config) *Mic {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1024
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	return &Mic{
		sampleRate: cfg.SampleRate,
		chunkSize:  cfg.ChunkSize,
		queueDepth: cfg.QueueDepth,
		device:     cfg.Device,
		onDrop:     cfg.OnDrop,
	}
}

// Start initialises PortAudio, opens the default input stream, and launches
// the capture goroutine. If the device cannot be opened the error is returned
// and no goroutine is started; restarting is the caller's responsibility, as
// the loop never silently retries the device mid-session.
func (m *Mic) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("capture: already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: initialise portaudio: %w", err)
	}

	in := make([]int16, m.chunkSize)
	stream, err := m.openStream(in)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("capture: open input device: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("capture: start stream: %w", err)
	}

	m.frames = make(chan audio.Frame, m.queueDepth)
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true

	go m.captureLoop(stream, in)

	slog.Info("capture started", "sample_rate", m.sampleRate, "chunk_size", m.chunkSize)
	return nil
}

// Stop signals the capture loop to exit and waits up to the grace period for
// it to release the device. Calling Stop when the source is not running (or
// calling it twice) is a no-op returning nil.
func (m *Mic) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
		return errors.New("capture: loop did not exit within grace period")
	}
}

// openStream opens the configured input device, or the system default when
// no device name is set. PortAudio must already be initialised.
func (m *Mic) openStream(in []int16) (*portaudio.Stream, error) {
	if m.device == "" {
		return portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), len(in), in)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	want := strings.ToLower(m.device)
	for _, d := range devices {
		if d.MaxInputChannels < 1 || !strings.Contains(strings.ToLower(d.Name), want) {
			continue
		}
		params := portaudio.LowLatencyParameters(d, nil)
		params.Input.Channels = 1
		params.SampleRate = float64(m.sampleRate)
		params.FramesPerBuffer = len(in)
		slog.Info("capture using input device", "device", d.Name)
		return portaudio.OpenStream(params, in)
	}
	return nil, fmt.Errorf("no input device matching %q", m.device)
}

// Frames returns the queue the capture loop feeds. The channel belongs to the
// current Start/Stop cycle and is closed when the loop exits.
func (m *Mic) Frames() <-chan audio.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Dropped returns the total number of frames discarded under queue overflow
// since the source was created.
func (m *Mic) Dropped() uint64 {
	return m.dropped.Load()
}

// captureLoop owns the device for one Start/Stop cycle. It blocks on the
// device read call, converts each chunk to a Frame, and enqueues it with a
// drop-oldest overflow policy so capture never blocks on a slow consumer.
func (m *Mic) captureLoop(stream *portaudio.Stream, in []int16) {
	defer close(m.done)
	defer func() {
		close(m.frames)
		if err := stream.Stop(); err != nil {
			slog.Warn("capture: stop stream", "err", err)
		}
		if err := stream.Close(); err != nil {
			slog.Warn("capture: close stream", "err", err)
		}
		if err := portaudio.Terminate(); err != nil {
			slog.Warn("capture: terminate portaudio", "err", err)
		}
	}()

	start := time.Now()
	consecutiveErrors := 0

	for {
		select {
		case <-m.stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveReadErrors {
				slog.Error("capture: device read failing persistently, stopping capture", "err", err)
				return
			}
			// Transient read errors must not kill capture.
			slog.Warn("capture: device read error", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		consecutiveErrors = 0

		m.enqueue(audio.Frame{
			Data:       samplesToBytes(in),
			SampleRate: m.sampleRate,
			Timestamp:  time.Since(start),
		})
	}
}

// enqueue pushes f into the frame queue, evicting the oldest queued frame
// when the queue is full. Frame order is preserved for everything that is
// not evicted.
func (m *Mic) enqueue(f audio.Frame) {
	select {
	case m.frames <- f:
		return
	default:
	}
	// Queue full: drop the oldest frame to make room.
	select {
	case <-m.frames:
		m.countDrop()
	default:
	}
	select {
	case m.frames <- f:
	default:
		m.countDrop()
	}
}

// countDrop records one evicted frame in the local counter and the optional
// drop callback.
func (m *Mic) countDrop() {
	m.dropped.Add(1)
	if m.onDrop != nil {
		m.onDrop()
	}
}

// samplesToBytes copies int16 samples into a fresh little-endian byte slice.
// A copy is required because the PortAudio read buffer is reused.
func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
