package intent

import (
	"context"
	"math"
	"testing"

	"github.com/openhark/hark/pkg/stt"
)

// TestParse_Intents checks representative transcripts against the table.
func TestParse_Intents(t *testing.T) {
	t.Parallel()
	p := NewParser()
	cases := []struct {
		text string
		want string
	}{
		{"help", "help"},
		{"help me", "help"},
		{"what can you do", "help"},
		{"stop listening", "stop"},
		{"quit", "stop"},
		{"never mind", "cancel"},
		{"nevermind", "cancel"},
		{"what's the time", "time"},
		{"what is the time", "time"},
		{"current time", "time"},
		{"what day is it", "date"},
		{"what's the weather like", "weather"},
		{"weather forecast", "weather"},
		{"search for cat pictures", "search"},
		{"look up the capital of france", "search"},
		{"play some jazz", "play"},
		{"listen to the news", "play"},
		{"pause music", "pause"},
		{"next track", "next"},
		{"skip this", "next"},
		{"previous song", "previous"},
		{"go back", "previous"},
		{"set a timer for 5 minutes", "set_timer"},
		{"timer for 30 seconds", "set_timer"},
		{"wake me up at 7 am", "set_alarm"},
		{"how much time left", "check_timer"},
		{"check timer", "check_timer"},
		{"turn up", "volume_up"},
		{"louder", "volume_up"},
		{"volume down", "volume_down"},
		{"decrease volume", "volume_down"},
		// "quit" sits earlier in the table and matches as a prefix.
		{"quieter", "stop"},
		{"mute", "mute"},
		{"silence", "mute"},
		{"flibbertigibbet nonsense", "unknown"},
	}
	for _, tc := range cases {
		if got := p.Parse(tc.text); got.Name != tc.want {
			t.Errorf("Parse(%q) = %q, want %q", tc.text, got.Name, tc.want)
		}
	}
}

// TestParse_CaseInsensitive checks that casing does not affect the outcome.
func TestParse_CaseInsensitive(t *testing.T) {
	t.Parallel()
	p := NewParser()
	got := p.Parse("SET A TIMER FOR 10 Minutes")
	if got.Name != "set_timer" {
		t.Errorf("expected set_timer, got %q", got.Name)
	}
}

// TestParse_Entities checks capture-group extraction and positional keys.
func TestParse_Entities(t *testing.T) {
	t.Parallel()
	p := NewParser()

	got := p.Parse("search for cat pictures")
	if got.Entities["entity_1"] != "cat pictures" {
		t.Errorf("expected entity_1=%q, got %v", "cat pictures", got.Entities)
	}

	// The optional group before "timer" participates, so the duration lands
	// in the second slot.
	got = p.Parse("set a timer for 5 minutes")
	if got.Entities["entity_2"] != "5 minutes" {
		t.Errorf("expected entity_2=%q, got %v", "5 minutes", got.Entities)
	}

	// Without the optional group the duration is still keyed by position.
	got = p.Parse("set timer for 5 minutes")
	if got.Name != "set_timer" || got.Entities["entity_2"] != "5 minutes" {
		t.Errorf("expected set_timer with entity_2, got %q %v", got.Name, got.Entities)
	}
}

// TestParse_Confidence checks cover-ratio scoring with the specific-intent
// boost and its cap.
func TestParse_Confidence(t *testing.T) {
	t.Parallel()
	p := NewParser()

	// Full-cover specific match boosts past 1.0 and is capped.
	got := p.Parse("search for cats")
	if got.Confidence != 1.0 {
		t.Errorf("expected capped confidence 1.0, got %v", got.Confidence)
	}

	// Partial cover: "help" covers 4 of 19 characters, boosted by 1.5.
	got = p.Parse("help with something")
	want := 4.0 / 19.0 * 1.5
	if math.Abs(got.Confidence-want) > 1e-9 {
		t.Errorf("expected confidence %v, got %v", want, got.Confidence)
	}
	if got.Name != "help" {
		t.Errorf("expected help, got %q", got.Name)
	}
}

// TestParse_Empty checks the empty-transcript result.
func TestParse_Empty(t *testing.T) {
	t.Parallel()
	p := NewParser()
	got := p.Parse("   ")
	if got.Name != "unknown" || got.Confidence != 0 {
		t.Errorf("expected unknown with zero confidence, got %q %v", got.Name, got.Confidence)
	}
}

// TestParse_TableOrder checks that specific intents win over the catch-all
// and over later table entries with overlapping prefixes.
func TestParse_TableOrder(t *testing.T) {
	t.Parallel()
	p := NewParser()
	// "stop playing" is both a stop-prefix and the pause pattern; "stop"
	// comes first in the table.
	got := p.Parse("stop playing")
	if got.Name != "stop" {
		t.Errorf("expected stop (earlier table entry), got %q", got.Name)
	}
}

// TestHandlerFunc checks the function adapter.
func TestHandlerFunc(t *testing.T) {
	t.Parallel()
	var seen stt.Result
	h := HandlerFunc(func(_ context.Context, r stt.Result) { seen = r })
	h.OnCommand(context.Background(), stt.Result{Text: "hello", Engine: "fast", Succeeded: true})
	if seen.Text != "hello" || seen.Engine != "fast" {
		t.Errorf("handler did not receive the result: %+v", seen)
	}
}
