// Package intent classifies free-text queries into an archetype, a dominant
// emotion, matched domain concepts and corpus source preferences. It is
// deterministic and performs no I/O.
package intent

import (
	"strings"
)

// Classifier applies ordered pattern checks followed by weighted heuristic
// scoring. A Classifier is safe for concurrent use.
type Classifier struct {
	cfg Config
}

// NewClassifier returns a Classifier using cfg. Zero-valued fields fall back
// to DefaultConfig.
func NewClassifier(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.FastPathMaxLen <= 0 {
		cfg.FastPathMaxLen = def.FastPathMaxLen
	}
	if cfg.ExplicitConfidence <= 0 {
		cfg.ExplicitConfidence = def.ExplicitConfidence
	}
	if cfg.Baseline == (SourcePreference{}) {
		cfg.Baseline = def.Baseline
	}
	if cfg.Preferences == nil {
		cfg.Preferences = def.Preferences
	}
	if cfg.Nudges == nil {
		cfg.Nudges = def.Nudges
	}
	if cfg.Concepts == nil {
		cfg.Concepts = def.Concepts
	}
	return &Classifier{cfg: cfg}
}

// Classify never fails: unmatched input falls through to defaults.
func (c *Classifier) Classify(query string) Classification {
	text := strings.ToLower(strings.TrimSpace(query))

	if len(text) < c.cfg.FastPathMaxLen && greetingRe.MatchString(text) {
		return Classification{
			Archetype:  Chat,
			Scores:     map[Archetype]float64{Chat: 1.0},
			Confidence: 1.0,
			Emotion:    Neutral,
			Concepts:   []Concept{},
			Preference: c.cfg.Baseline,
			FastPath:   true,
		}
	}

	if verbatimRe.MatchString(text) {
		return c.explicit(Verbatim)
	}
	if directReadRe.MatchString(text) {
		return c.explicit(DirectRead)
	}

	emotion, intensity := detectEmotion(text)
	scores := scoreArchetypes(text)

	primary, best := Exploration, 0.0
	for _, a := range scored {
		if scores[a] > best {
			primary, best = a, scores[a]
		}
	}

	return Classification{
		Archetype:  primary,
		Scores:     scores,
		Confidence: best,
		Emotion:    emotion,
		Intensity:  intensity,
		Concepts:   c.tagConcepts(text),
		Preference: c.preference(primary, emotion),
	}
}

func (c *Classifier) explicit(a Archetype) Classification {
	return Classification{
		Archetype:  a,
		Scores:     map[Archetype]float64{a: c.cfg.ExplicitConfidence},
		Confidence: c.cfg.ExplicitConfidence,
		Emotion:    Neutral,
		Concepts:   []Concept{},
		Preference: c.preference(a, Neutral),
	}
}

func detectEmotion(text string) (Emotion, int) {
	dominant, top := Neutral, 0
	for _, g := range emotionBank {
		n := 0
		for _, re := range g.patterns {
			if re.MatchString(text) {
				n++
			}
		}
		if n > top {
			dominant, top = g.emotion, n
		}
	}
	return dominant, top
}

func scoreArchetypes(text string) map[Archetype]float64 {
	scores := make(map[Archetype]float64, len(scored))
	for _, a := range scored {
		scores[a] = 0
	}
	for _, chk := range archetypeChecks {
		if chk.re.MatchString(text) {
			scores[chk.archetype] += chk.weight
		}
	}
	for a, s := range scores {
		scores[a] = min(round2(s), 1.0)
	}
	return scores
}

func (c *Classifier) tagConcepts(text string) []Concept {
	out := []Concept{}
	for _, def := range c.cfg.Concepts {
		for _, kw := range def.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				out = append(out, Concept{Name: def.Name, Keyword: kw})
				break
			}
		}
	}
	return out
}

func (c *Classifier) preference(a Archetype, e Emotion) SourcePreference {
	p := c.cfg.Baseline
	if o, ok := c.cfg.Preferences[a]; ok {
		p = o
	}
	if n, ok := c.cfg.Nudges[e]; ok {
		p.Primary += n.Primary
		p.Secondary += n.Secondary
	}
	return SourcePreference{Primary: clamp01(p.Primary), Secondary: clamp01(p.Secondary)}
}

func clamp01(v float64) float64 {
	return max(0, min(round2(v), 1))
}

// round2 keeps accumulated float increments (0.1+0.2) comparable.
func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
