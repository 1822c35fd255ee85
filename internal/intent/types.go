package intent

// Archetype is a coarse intent category.
type Archetype string

const (
	Chat          Archetype = "chat"
	DirectRead    Archetype = "direct-read"
	Understanding Archetype = "seeking-understanding"
	Action        Archetype = "seeking-action"
	Verbatim      Archetype = "seeking-verbatim-source"
	Comfort       Archetype = "seeking-comfort"
	Exploration   Archetype = "seeking-exploration"
	Application   Archetype = "seeking-application"
)

// scored lists the archetypes that take part in heuristic scoring, in the
// order used to break ties.
var scored = []Archetype{Understanding, Action, Exploration, Comfort, Application, Verbatim}

// Emotion is the dominant emotional tone of a query.
type Emotion string

const (
	Neutral    Emotion = "neutral"
	Vulnerable Emotion = "vulnerable"
	Frustrated Emotion = "frustrated"
	Curious    Emotion = "curious"
	Determined Emotion = "determined"
	Excited    Emotion = "excited"
)

// Concept is a domain concept matched in the query, with the keyword that hit.
type Concept struct {
	Name    string `json:"name"`
	Keyword string `json:"keyword"`
}

// SourcePreference holds independent relevance multipliers for the two
// corpus categories. The values are each in [0,1] and do not sum to 1.
type SourcePreference struct {
	Primary   float64 `json:"primary"`
	Secondary float64 `json:"secondary"`
}

// Classification is the structured result of classifying one query.
type Classification struct {
	Archetype  Archetype             `json:"archetype"`
	Scores     map[Archetype]float64 `json:"scores"`
	Confidence float64               `json:"confidence"`
	Emotion    Emotion               `json:"emotion"`
	Intensity  int                   `json:"intensity"`
	Concepts   []Concept             `json:"concepts"`
	Preference SourcePreference      `json:"source_preference"`
	FastPath   bool                  `json:"fast_path"`
}
