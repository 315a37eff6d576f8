package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// TestPCMToFloat32_Normalisation checks the scaling of representative samples.
func TestPCMToFloat32_Normalisation(t *testing.T) {
	buf := pcm16(0, 16384, -16384, 32767, -32768)
	out := PCMToFloat32(buf)

	if len(out) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(out))
	}
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("sample %d: got %v, want %v", i, out[i], w)
		}
	}
}

// TestPCMToFloat32_OddTrailingByte checks that a dangling byte is dropped.
func TestPCMToFloat32_OddTrailingByte(t *testing.T) {
	buf := append(pcm16(1000), 0x7f)
	out := PCMToFloat32(buf)
	if len(out) != 1 {
		t.Errorf("expected 1 sample, got %d", len(out))
	}
}

// TestEncodeWAV_Header checks the RIFF/WAVE framing and format fields of the
// encoded container.
func TestEncodeWAV_Header(t *testing.T) {
	pcm := pcm16(0, 1000, -1000, 250)
	out, err := EncodeWAV(pcm, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out) < 44 {
		t.Fatalf("encoded file too short: %d bytes", len(out))
	}
	if !bytes.Equal(out[0:4], []byte("RIFF")) || !bytes.Equal(out[8:12], []byte("WAVE")) {
		t.Error("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(out[24:28]); rate != 16000 {
		t.Errorf("expected sample rate 16000 in header, got %d", rate)
	}
	if channels := binary.LittleEndian.Uint16(out[22:24]); channels != 1 {
		t.Errorf("expected 1 channel, got %d", channels)
	}
	if depth := binary.LittleEndian.Uint16(out[34:36]); depth != 16 {
		t.Errorf("expected 16-bit depth, got %d", depth)
	}
	if !bytes.Contains(out, pcm) {
		t.Error("encoded file does not contain the source PCM data")
	}
}

// TestEncodeWAV_Empty checks that an empty buffer still yields a valid header.
func TestEncodeWAV_Empty(t *testing.T) {
	out, err := EncodeWAV(nil, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) < 44 {
		t.Errorf("expected at least a header, got %d bytes", len(out))
	}
}
