package audio

import (
	"encoding/binary"
	"testing"
)

// pcm16 builds a little-endian PCM buffer from int16 samples.
func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// TestIsSilence_BelowThreshold checks that low-amplitude audio is silent.
func TestIsSilence_BelowThreshold(t *testing.T) {
	buf := pcm16(0, 12, -34, 499, -499)
	if !IsSilence(buf, DefaultSilenceThreshold) {
		t.Error("expected buffer with max amplitude 499 to be silent at threshold 500")
	}
}

// TestIsSilence_AtThreshold checks the boundary: amplitude equal to the
// threshold is no longer silence.
func TestIsSilence_AtThreshold(t *testing.T) {
	buf := pcm16(0, 500)
	if IsSilence(buf, DefaultSilenceThreshold) {
		t.Error("expected amplitude 500 to count as speech at threshold 500")
	}
}

// TestIsSilence_NegativePeak checks that negative peaks count by magnitude.
func TestIsSilence_NegativePeak(t *testing.T) {
	buf := pcm16(0, -3000, 10)
	if IsSilence(buf, DefaultSilenceThreshold) {
		t.Error("expected buffer with -3000 peak to be non-silent")
	}
}

// TestIsSilence_EmptyBuffer checks that an empty buffer reads as silent.
func TestIsSilence_EmptyBuffer(t *testing.T) {
	if !IsSilence(nil, DefaultSilenceThreshold) {
		t.Error("expected empty buffer to be silent")
	}
}

// TestMaxAmplitude checks peak extraction including int16 extremes.
func TestMaxAmplitude(t *testing.T) {
	cases := []struct {
		name    string
		samples []int16
		want    int
	}{
		{"empty", nil, 0},
		{"zeros", []int16{0, 0, 0}, 0},
		{"positive peak", []int16{100, 2500, 7}, 2500},
		{"negative peak", []int16{-8000, 100}, 8000},
		{"min int16", []int16{-32768}, 32768},
	}
	for _, tc := range cases {
		if got := MaxAmplitude(pcm16(tc.samples...)); got != tc.want {
			t.Errorf("%s: MaxAmplitude = %d, want %d", tc.name, got, tc.want)
		}
	}
}

// TestPCMDuration checks byte-count to duration conversion for 16-bit mono.
func TestPCMDuration(t *testing.T) {
	// 16000 samples at 16 kHz is exactly one second, 32000 bytes.
	if d := PCMDuration(32000, 16000); d.Seconds() != 1.0 {
		t.Errorf("expected 1s, got %v", d)
	}
	if d := PCMDuration(0, 16000); d != 0 {
		t.Errorf("expected 0 for empty buffer, got %v", d)
	}
}
