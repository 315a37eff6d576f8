package wake

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/openhark/hark/pkg/audio"
	"github.com/openhark/hark/pkg/stt/mock"
)

const testRate = 16000

// loudFrame returns 100ms of audio well above the silence threshold.
func loudFrame() audio.Frame {
	return toneFrame(4000)
}

// silentFrame returns 100ms of near-silence.
func silentFrame() audio.Frame {
	return toneFrame(10)
}

func toneFrame(amplitude int16) audio.Frame {
	samples := testRate / 10
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return audio.Frame{Data: data, SampleRate: testRate}
}

// feed pushes frames through the detector and reports whether any of them
// triggered a detection.
func feed(d *Detector, frames ...audio.Frame) bool {
	detected := false
	for _, f := range frames {
		if d.ProcessFrame(context.Background(), f) {
			detected = true
		}
	}
	return detected
}

// utterance is 400ms of speech followed by 300ms of silence, enough to
// finalise a phrase.
func utterance() []audio.Frame {
	return []audio.Frame{
		loudFrame(), loudFrame(), loudFrame(), loudFrame(),
		silentFrame(), silentFrame(), silentFrame(),
	}
}

// TestProcessFrame_DetectsPhrase checks the happy path: a short utterance
// whose transcript contains a configured phrase.
func TestProcessFrame_DetectsPhrase(t *testing.T) {
	engine := &mock.Engine{EngineName: "fast", Text: "Hey, Hark!"}
	d := New(engine, Config{Phrases: []string{"hey hark"}, Sensitivity: 0.3})

	if !feed(d, utterance()...) {
		t.Fatal("expected wake detection")
	}
	if engine.CallCount() != 1 {
		t.Errorf("expected 1 transcription, got %d", engine.CallCount())
	}
}

// TestProcessFrame_ReadyNextCycle checks that the detector re-arms
// immediately after a detection.
func TestProcessFrame_ReadyNextCycle(t *testing.T) {
	engine := &mock.Engine{EngineName: "fast", Text: "hey hark"}
	d := New(engine, Config{Phrases: []string{"hey hark"}})

	if !feed(d, utterance()...) {
		t.Fatal("expected first detection")
	}
	if !feed(d, utterance()...) {
		t.Fatal("expected second detection from a fresh utterance")
	}
	if engine.CallCount() != 2 {
		t.Errorf("expected 2 transcriptions, got %d", engine.CallCount())
	}
}

// TestProcessFrame_NoMatch checks that an unrelated transcript is ignored.
func TestProcessFrame_NoMatch(t *testing.T) {
	engine := &mock.Engine{EngineName: "fast", Text: "what time is it"}
	d := New(engine, Config{Phrases: []string{"hey hark"}})

	if feed(d, utterance()...) {
		t.Error("expected no detection for unrelated speech")
	}
}

// TestProcessFrame_EngineUnavailable checks silent degradation: the engine
// is never invoked and nothing is detected.
func TestProcessFrame_EngineUnavailable(t *testing.T) {
	engine := &mock.Engine{EngineName: "fast", Text: "hey hark", Unavailable: true}
	d := New(engine, Config{Phrases: []string{"hey hark"}})

	if feed(d, utterance()...) {
		t.Error("expected no detection with unavailable engine")
	}
	if engine.CallCount() != 0 {
		t.Errorf("unavailable engine invoked %d times", engine.CallCount())
	}
}

// TestProcessFrame_NilEngine checks that a nil engine is tolerated.
func TestProcessFrame_NilEngine(t *testing.T) {
	d := New(nil, Config{Phrases: []string{"hey hark"}})
	if feed(d, utterance()...) {
		t.Error("expected no detection with nil engine")
	}
}

// TestProcessFrame_TooShortSkipsTranscription checks that a blip shorter
// than the minimum utterance is never transcribed.
func TestProcessFrame_TooShortSkipsTranscription(t *testing.T) {
	engine := &mock.Engine{EngineName: "fast", Text: "hey hark"}
	d := New(engine, Config{Phrases: []string{"hey hark"}})

	// 100ms of speech, then silence.
	feed(d, loudFrame(), silentFrame(), silentFrame(), silentFrame())
	if engine.CallCount() != 0 {
		t.Errorf("expected no transcription for a 100ms blip, got %d calls", engine.CallCount())
	}
}

// TestProcessFrame_LongSpeechDiscarded checks that speech past the maximum
// utterance length is dropped without transcription.
func TestProcessFrame_LongSpeechDiscarded(t *testing.T) {
	engine := &mock.Engine{EngineName: "fast", Text: "hey hark"}
	d := New(engine, Config{Phrases: []string{"hey hark"}})

	frames := make([]audio.Frame, 0, 25)
	for i := 0; i < 22; i++ { // 2.2s of continuous speech
		frames = append(frames, loudFrame())
	}
	frames = append(frames, silentFrame(), silentFrame(), silentFrame())

	if feed(d, frames...) {
		t.Error("expected no detection for over-long speech")
	}
	if engine.CallCount() != 0 {
		t.Errorf("expected no transcription for over-long speech, got %d calls", engine.CallCount())
	}
}

// TestProcessFrame_SilenceOnlyInert checks that pure silence never wakes.
func TestProcessFrame_SilenceOnlyInert(t *testing.T) {
	engine := &mock.Engine{EngineName: "fast", Text: "hey hark"}
	d := New(engine, Config{Phrases: []string{"hey hark"}})

	for i := 0; i < 20; i++ {
		if d.ProcessFrame(context.Background(), silentFrame()) {
			t.Fatal("silence triggered a detection")
		}
	}
	if engine.CallCount() != 0 {
		t.Errorf("silence caused %d transcriptions", engine.CallCount())
	}
}

// TestProcessFrame_ConfigHotSwap checks that an updated phrase list applies
// to the next utterance.
func TestProcessFrame_ConfigHotSwap(t *testing.T) {
	engine := &mock.Engine{EngineName: "fast", Text: "okay computer"}
	d := New(engine, Config{Phrases: []string{"hey hark"}})

	if feed(d, utterance()...) {
		t.Fatal("unexpected detection before config swap")
	}
	d.UpdateConfig(Config{Phrases: []string{"okay computer"}})
	if !feed(d, utterance()...) {
		t.Fatal("expected detection after config swap")
	}
}

// TestMatches_Substring checks case- and punctuation-insensitive matching.
func TestMatches_Substring(t *testing.T) {
	t.Parallel()
	cfg := Config{Phrases: []string{"hey hark"}}.normalized()
	cases := []struct {
		text string
		want bool
	}{
		{"hey hark", true},
		{"Hey, Hark!", true},
		{"HEY HARK turn on the lights", true},
		{"well hey hark what now", true},
		{"hey clark", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := matches(tc.text, cfg); got != tc.want {
			t.Errorf("matches(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

// TestMatches_FuzzyBySensitivity checks that near-misses only match once
// sensitivity enables fuzzy scoring.
func TestMatches_FuzzyBySensitivity(t *testing.T) {
	t.Parallel()
	strict := Config{Phrases: []string{"hey hark"}, Sensitivity: 0.3}.normalized()
	if matches("hey harc", strict) {
		t.Error("expected no fuzzy match below the sensitivity cutoff")
	}

	loose := Config{Phrases: []string{"hey hark"}, Sensitivity: 0.9}.normalized()
	if !matches("hey harc", loose) {
		t.Error("expected fuzzy match at high sensitivity")
	}
	if matches("completely different words", loose) {
		t.Error("fuzzy matching accepted unrelated text")
	}
}

// TestConfigNormalized checks clamping and phrase normalisation.
func TestConfigNormalized(t *testing.T) {
	t.Parallel()
	cfg := Config{Phrases: []string{"  Hey Hark ", "", "OK Computer", "!?."}, Sensitivity: 1.7}.normalized()
	if cfg.Sensitivity != 1.0 {
		t.Errorf("expected sensitivity clamped to 1.0, got %v", cfg.Sensitivity)
	}
	if len(cfg.Phrases) != 2 || cfg.Phrases[0] != "hey hark" || cfg.Phrases[1] != "ok computer" {
		t.Errorf("unexpected normalised phrases: %v", cfg.Phrases)
	}
}

// TestConfigNormalized_PunctuatedPhrase checks that punctuation in a
// configured phrase cannot defeat substring matching: phrases and
// transcripts share one normal form.
func TestConfigNormalized_PunctuatedPhrase(t *testing.T) {
	t.Parallel()
	cfg := Config{Phrases: []string{"Hey, Hark!"}}.normalized()
	if len(cfg.Phrases) != 1 || cfg.Phrases[0] != "hey hark" {
		t.Fatalf("unexpected normalised phrases: %v", cfg.Phrases)
	}
	if !matches("hey hark turn on the lights", cfg) {
		t.Error("punctuated phrase failed to match a clean transcript")
	}
	if !matches("Hey, Hark. Lights!", cfg) {
		t.Error("punctuated phrase failed to match a punctuated transcript")
	}
}
