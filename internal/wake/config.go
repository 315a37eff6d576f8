package wake

// Config is the hot-swappable wake-word configuration. Detectors hold it as
// an atomic snapshot: updates replace the whole value, readers load it once
// per processing cycle and never observe a half-applied change.
type Config struct {
	// Phrases are the wake phrases, matched case-insensitively.
	Phrases []string

	// Sensitivity in [0,1] selects the matching strategy. Exact substring
	// matching always applies; at 0.5 and above fuzzy matching is added,
	// with a similarity threshold that relaxes as sensitivity grows.
	Sensitivity float64
}

// normalized returns a copy with phrases run through the same normalisation
// as transcripts, empty phrases removed and sensitivity clamped to [0,1].
// Phrases and transcripts must share one normal form or punctuation in the
// configured phrase would defeat substring matching.
func (c Config) normalized() Config {
	out := Config{
		Phrases:     make([]string, 0, len(c.Phrases)),
		Sensitivity: min(max(c.Sensitivity, 0), 1),
	}
	for _, p := range c.Phrases {
		if p = normalize(p); p != "" {
			out.Phrases = append(out.Phrases, p)
		}
	}
	return out
}
