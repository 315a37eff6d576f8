package wake

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// fuzzyMinSensitivity is the sensitivity level at which fuzzy matching joins
// exact substring matching.
const fuzzyMinSensitivity = 0.5

// matches reports whether a transcript triggers any configured wake phrase.
// The transcript is normalised (lower-cased, punctuation stripped, whitespace
// collapsed) and each phrase is first tested as a plain substring. When
// sensitivity reaches fuzzyMinSensitivity, token windows of the transcript
// are additionally scored with Jaro-Winkler against each phrase.
func matches(transcript string, cfg Config) bool {
	text := normalize(transcript)
	if text == "" {
		return false
	}

	for _, phrase := range cfg.Phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}

	if cfg.Sensitivity < fuzzyMinSensitivity {
		return false
	}
	threshold := fuzzyThreshold(cfg.Sensitivity)
	words := strings.Fields(text)
	for _, phrase := range cfg.Phrases {
		if fuzzyMatch(words, phrase, threshold) {
			return true
		}
	}
	return false
}

// fuzzyThreshold maps sensitivity in [0.5,1] to a Jaro-Winkler similarity
// threshold: strict 0.95 at the low end, relaxing linearly to 0.80 at full
// sensitivity.
func fuzzyThreshold(sensitivity float64) float64 {
	return 0.95 - (sensitivity-fuzzyMinSensitivity)*0.3
}

// fuzzyMatch slides a window of as many words as the phrase has across the
// transcript and scores each window against the phrase.
func fuzzyMatch(words []string, phrase string, threshold float64) bool {
	n := len(strings.Fields(phrase))
	if n == 0 || len(words) < n {
		return false
	}
	for i := 0; i+n <= len(words); i++ {
		window := strings.Join(words[i:i+n], " ")
		if matchr.JaroWinkler(window, phrase, false) >= threshold {
			return true
		}
	}
	return false
}

// normalize lower-cases, strips everything but letters, digits and spaces,
// and collapses runs of whitespace. Recognisers tend to decorate short
// utterances with punctuation and casing that must not defeat matching.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
