package audio

import "time"

// BitsPerSample is fixed at 16 for the signed little-endian PCM audio that
// flows through the whole pipeline. Every component assumes this depth.
const BitsPerSample = 16

// Frame represents a single fixed-size chunk of PCM audio captured from the
// microphone. Frames are the atomic unit of transport: the capture layer
// produces them, the pipeline loop consumes each one exactly once (ownership
// transfers through the frame queue) and the Data slice must not be mutated
// after construction.
type Frame struct {
	// Data is raw 16-bit signed little-endian PCM.
	Data []byte

	// SampleRate in Hz (16000 for the STT-optimised mono capture default).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Duration returns the play length of the frame's audio.
func (f Frame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate)
}

// PCMDuration converts a byte count of 16-bit mono PCM at the given sample
// rate into a duration. Returns 0 for a non-positive sample rate.
func PCMDuration(numBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := numBytes / (BitsPerSample / 8)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
