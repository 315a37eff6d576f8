package audio

import (
	"encoding/binary"
	"math"
)

// DefaultSilenceThreshold is the peak-amplitude level (in 16-bit PCM units,
// full scale 32767) below which a frame is treated as silence. 500 is the
// tuning the endpointing policy was calibrated around; treat it as a named
// constant, not a derived value.
const DefaultSilenceThreshold = 500

// IsSilence reports whether a chunk of 16-bit signed little-endian PCM is
// silent: the maximum absolute sample magnitude stays below threshold.
//
// This is a deliberately simple energy gate, not a VAD model. False
// positives and negatives at speech onsets/offsets are expected and are
// absorbed by the utterance buffering policy, not fixed here.
func IsSilence(pcm []byte, threshold int) bool {
	return MaxAmplitude(pcm) < threshold
}

// MaxAmplitude returns the maximum absolute sample magnitude over a chunk of
// 16-bit signed little-endian PCM. A trailing odd byte is ignored.
func MaxAmplitude(pcm []byte) int {
	maxAbs := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int(int16(binary.LittleEndian.Uint16(pcm[i : i+2])))
		if sample < 0 {
			sample = -sample
		}
		if sample > maxAbs {
			maxAbs = sample
		}
	}
	return maxAbs
}

// RMS computes the root-mean-square energy of a chunk of 16-bit signed
// little-endian PCM. Returns 0 for chunks shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(n))
}
