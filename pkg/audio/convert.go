package audio

import (
	"encoding/binary"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// PCMToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be even
// (two bytes per sample); any trailing odd byte is silently ignored.
func PCMToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// EncodeWAV wraps mono 16-bit PCM in a WAV container and returns the encoded
// bytes. The file is staged on an in-memory filesystem because the WAV
// encoder needs an io.WriteSeeker to backfill the header after the data
// chunk is written.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	fs := afero.NewMemMapFs()
	f, err := fs.Create("utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("audio: stage wav file: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, BitsPerSample, 1, 1)

	n := len(pcm) / 2
	data := make([]int, n)
	for i := range n {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: finalise wav: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("audio: close wav file: %w", err)
	}

	return afero.ReadFile(fs, "utterance.wav")
}
