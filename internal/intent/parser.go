// Package intent classifies recognised command text into intents with a
// small ordered table of regular expressions. It sits behind the pipeline's
// command event: transcripts go in, an intent name with extracted entities
// and a confidence score comes out.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/openhark/hark/pkg/stt"
)

// Intent is the parse result for one command transcript.
type Intent struct {
	// Name is the matched intent, "unknown" when nothing specific matched.
	Name string

	// Confidence in [0,1]: how much of the text the winning pattern
	// covered, boosted for specific intents.
	Confidence float64

	// Entities holds captured pattern groups keyed entity_1, entity_2, ...
	Entities map[string]string

	// Text is the original transcript.
	Text string
}

// Handler consumes recognised commands. Implementations must not block the
// caller longer than necessary; the event consumer is serial.
type Handler interface {
	OnCommand(ctx context.Context, r stt.Result)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, r stt.Result)

// OnCommand calls f.
func (f HandlerFunc) OnCommand(ctx context.Context, r stt.Result) { f(ctx, r) }

// specificBoost scales confidence for any intent other than the catch-all.
const specificBoost = 1.5

// entry pairs an intent name with its alternative patterns. Order matters:
// earlier entries win, the catch-all sits last.
type entry struct {
	name     string
	patterns []*regexp.Regexp
}

// Parser matches transcripts against the intent table. Safe for concurrent
// use after construction.
type Parser struct {
	table []entry
}

// NewParser builds a parser with the default intent table.
func NewParser() *Parser {
	mk := func(name string, pats ...string) entry {
		e := entry{name: name}
		for _, p := range pats {
			// Anchored at the start, matching Python re.match semantics.
			e.patterns = append(e.patterns, regexp.MustCompile(`(?i)^(?:`+p+`)`))
		}
		return e
	}
	return &Parser{table: []entry{
		mk("help", `help( me)?`, `what can (you|i) do`, `what commands`),
		mk("stop", `stop( listening)?`, `exit`, `quit`, `bye`),
		mk("cancel", `cancel( that)?`, `never ?mind`, `forget( it)?`),

		mk("time", `what('s| is) the time`, `current time`, `tell me the time`),
		mk("date", `what('s| is) the date`, `what day is( it)?`, `current date`),
		mk("weather", `what('s| is) the weather( like)?`, `weather (forecast|today|tomorrow)`),
		mk("search", `search for (.+)`, `look up (.+)`, `find (.+)`),

		mk("play", `play (.+)`, `start playing (.+)`, `listen to (.+)`),
		mk("pause", `pause( music| playback)?`, `stop playing`),
		mk("next", `next( track| song)?`, `skip( this)?`),
		mk("previous", `previous( track| song)?`, `go back`),

		mk("set_timer", `set( a)? timer for (.+)`, `timer for (.+)`),
		mk("set_alarm", `set( an)? alarm for (.+)`, `wake me up at (.+)`),
		mk("check_timer", `how much time (left|remaining)`, `check timer`),

		mk("volume_up", `(turn|volume) up`, `increase volume`, `louder`),
		mk("volume_down", `(turn|volume) down`, `decrease volume`, `quieter`),
		mk("mute", `mute( volume)?`, `silence`),

		mk("unknown", `.*`),
	}}
}

// Parse classifies text. An empty transcript parses as unknown with zero
// confidence. The first matching pattern in table order wins; confidence is
// the fraction of the text the match covered, multiplied by specificBoost
// (capped at 1.0) for all intents except the catch-all.
func (p *Parser) Parse(text string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Intent{Name: "unknown", Entities: map[string]string{}, Text: text}
	}

	for _, e := range p.table {
		for _, re := range e.patterns {
			loc := re.FindStringSubmatchIndex(normalized)
			if loc == nil {
				continue
			}

			// Entity keys follow the capture-group position, so optional
			// groups that did not participate leave gaps.
			entities := make(map[string]string)
			for g := 1; g*2+1 < len(loc); g++ {
				if loc[g*2] < 0 {
					continue
				}
				if v := normalized[loc[g*2]:loc[g*2+1]]; v != "" {
					entities[fmt.Sprintf("entity_%d", g)] = v
				}
			}

			confidence := float64(loc[1]-loc[0]) / float64(len(normalized))
			if e.name != "unknown" {
				confidence = min(confidence*specificBoost, 1.0)
			}

			return Intent{
				Name:       e.name,
				Confidence: confidence,
				Entities:   entities,
				Text:       text,
			}
		}
	}

	// Unreachable while the catch-all is in the table; kept so trimming the
	// table cannot panic callers.
	return Intent{Name: "unknown", Confidence: 0.1, Entities: map[string]string{}, Text: text}
}
