package retrieval

import (
	"github.com/kalambet/sage/internal/corpus"
	"github.com/kalambet/sage/internal/intent"
)

// Mode names the retrieval strategy that produced a Result.
type Mode string

const (
	ModeNone       Mode = "none"
	ModeDirectRead Mode = "direct-read"
	ModeKeyword    Mode = "keyword"
	ModeSemantic   Mode = "semantic"
	ModeHybrid     Mode = "hybrid"
)

// Passage is one unit of retrieved evidence.
type Passage struct {
	ID       string          `json:"id,omitempty"`
	Text     string          `json:"text"`
	Source   string          `json:"source"`
	DocID    string          `json:"doc_id,omitempty"`
	Category corpus.Category `json:"category"`
	// Score is the relevance in [0,1]: similarity, keyword overlap or fused.
	Score      float64 `json:"score"`
	DirectRead bool    `json:"direct_read,omitempty"`
	Reranked   bool    `json:"reranked,omitempty"`
}

// Result is the ordered evidence for one query.
type Result struct {
	Mode           Mode                  `json:"mode"`
	Passages       []Passage             `json:"passages"`
	Classification intent.Classification `json:"classification"`
}

// Config holds retrieval constants.
type Config struct {
	TopK          int
	MinSimilarity float64
	// SemanticOverfetch multiplies the candidate count asked of the index.
	SemanticOverfetch int
	// WeightedOverfetch multiplies topK before source weighting.
	WeightedOverfetch int

	// Verbatim requests fuse semantic and keyword scores with these weights.
	VerbatimSemanticWeight float64
	VerbatimKeywordWeight  float64
	// KeywordNorm scales raw keyword scores into [0,1] during fusion.
	KeywordNorm float64
	// PhraseBonus is added when the whole query appears in a passage.
	PhraseBonus float64
	// MinWordLen excludes query words of this length or shorter.
	MinWordLen int
	// PrefixKeyLen is the text prefix length used to deduplicate passages.
	PrefixKeyLen int
	// KeywordPoolSize bounds the keyword candidates pulled from the index.
	KeywordPoolSize int

	// LinesPerPage converts page numbers to line offsets for direct reads.
	LinesPerPage int
	// WindowLines is the size of a direct-read passage.
	WindowLines int
}

// DefaultConfig returns the stock retrieval constants.
func DefaultConfig() Config {
	return Config{
		TopK:                   5,
		MinSimilarity:          0.3,
		SemanticOverfetch:      3,
		WeightedOverfetch:      2,
		VerbatimSemanticWeight: 0.4,
		VerbatimKeywordWeight:  0.6,
		KeywordNorm:            10,
		PhraseBonus:            5,
		MinWordLen:             3,
		PrefixKeyLen:           100,
		KeywordPoolSize:        200,
		LinesPerPage:           40,
		WindowLines:            120,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.SemanticOverfetch <= 0 {
		c.SemanticOverfetch = d.SemanticOverfetch
	}
	if c.WeightedOverfetch <= 0 {
		c.WeightedOverfetch = d.WeightedOverfetch
	}
	if c.VerbatimSemanticWeight == 0 && c.VerbatimKeywordWeight == 0 {
		c.VerbatimSemanticWeight, c.VerbatimKeywordWeight = d.VerbatimSemanticWeight, d.VerbatimKeywordWeight
	}
	if c.KeywordNorm <= 0 {
		c.KeywordNorm = d.KeywordNorm
	}
	if c.PhraseBonus <= 0 {
		c.PhraseBonus = d.PhraseBonus
	}
	if c.MinWordLen < 0 {
		c.MinWordLen = d.MinWordLen
	}
	if c.PrefixKeyLen <= 0 {
		c.PrefixKeyLen = d.PrefixKeyLen
	}
	if c.KeywordPoolSize <= 0 {
		c.KeywordPoolSize = d.KeywordPoolSize
	}
	if c.LinesPerPage <= 0 {
		c.LinesPerPage = d.LinesPerPage
	}
	if c.WindowLines <= 0 {
		c.WindowLines = d.WindowLines
	}
	return c
}
