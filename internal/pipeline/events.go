package pipeline

import (
	"errors"
	"time"

	"github.com/openhark/hark/pkg/stt"
)

// Sentinel errors carried by error events.
var (
	// ErrCaptureClosed reports that the capture source closed its frame
	// channel, normally because the audio device failed or was stopped.
	ErrCaptureClosed = errors.New("pipeline: capture source closed")

	// ErrRecognitionFailed reports that the fallback chain produced no
	// transcript for a finished utterance.
	ErrRecognitionFailed = errors.New("pipeline: recognition produced no transcript")
)

// EventKind discriminates the tagged Event union.
type EventKind int

const (
	// EventWake signals a detected wake phrase; the pipeline is now
	// listening for a command.
	EventWake EventKind = iota

	// EventCommand carries a successful recognition Result.
	EventCommand

	// EventTimeout signals that no command completed within the command
	// window after a wake.
	EventTimeout

	// EventError carries a pipeline failure. The pipeline has already
	// returned to idle when the event is delivered.
	EventError
)

// String returns the lower-case kind name, for logs.
func (k EventKind) String() string {
	switch k {
	case EventWake:
		return "wake"
	case EventCommand:
		return "command"
	case EventTimeout:
		return "timeout"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the single notification type emitted by the pipeline. Exactly one
// event is produced per state-machine cycle and events are never delivered
// concurrently: consumers read them from one channel in order.
type Event struct {
	// Kind selects which of the remaining fields are meaningful.
	Kind EventKind

	// Result holds the recognition outcome for EventCommand.
	Result stt.Result

	// Err holds the failure for EventError.
	Err error

	// At is when the event was produced.
	At time.Time
}
