package intent

// ConceptDef maps a domain concept to the keywords that signal it.
type ConceptDef struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Config holds the classifier's tunable constants.
type Config struct {
	// FastPathMaxLen is the longest trimmed query eligible for the greeting
	// fast path.
	FastPathMaxLen int
	// ExplicitConfidence is reported for verbatim and direct-read matches.
	ExplicitConfidence float64
	// Baseline is the starting weight of both corpus categories.
	Baseline SourcePreference
	// Preferences overrides the baseline per primary archetype.
	Preferences map[Archetype]SourcePreference
	// Nudges is added to the preference when an emotion is dominant.
	Nudges map[Emotion]SourcePreference
	// Concepts is the domain vocabulary, scanned in order.
	Concepts []ConceptDef
}

// DefaultConfig returns the stock classifier constants.
func DefaultConfig() Config {
	return Config{
		FastPathMaxLen:     20,
		ExplicitConfidence: 0.95,
		Baseline:           SourcePreference{Primary: 0.5, Secondary: 0.5},
		Preferences: map[Archetype]SourcePreference{
			Understanding: {Primary: 0.9, Secondary: 0.4},
			Verbatim:      {Primary: 0.9, Secondary: 0.4},
			Exploration:   {Primary: 0.9, Secondary: 0.4},
			Action:        {Primary: 0.4, Secondary: 0.9},
			Application:   {Primary: 0.4, Secondary: 0.9},
			Comfort:       {Primary: 0.8, Secondary: 0.8},
		},
		Nudges: map[Emotion]SourcePreference{
			Vulnerable: {Primary: 0.2},
			Determined: {Secondary: 0.2},
			Frustrated: {Secondary: 0.1},
		},
		Concepts: []ConceptDef{
			{Name: "attention", Keywords: []string{"attention", "awareness", "focus", "presence"}},
			{Name: "practice", Keywords: []string{"practice", "exercise", "routine", "habit", "discipline"}},
			{Name: "stillness", Keywords: []string{"meditation", "meditate", "silence", "stillness", "breath"}},
			{Name: "emotion", Keywords: []string{"fear", "anger", "grief", "anxiety", "shame"}},
			{Name: "relationship", Keywords: []string{"relationship", "partner", "family", "friend", "marriage"}},
			{Name: "purpose", Keywords: []string{"purpose", "meaning", "calling", "vocation"}},
			{Name: "self", Keywords: []string{"ego", "identity", "self-image", "self"}},
			{Name: "change", Keywords: []string{"change", "transform", "growth", "habit"}},
		},
	}
}
