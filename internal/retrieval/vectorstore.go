package retrieval

import (
	"context"
	"time"

	"github.com/kalambet/sage/internal/corpus"
)

// VectorStore is the passage index: vector similarity search plus a
// substring candidate lookup for keyword scoring.
type VectorStore interface {
	// Insert adds passage records.
	Insert(ctx context.Context, records []Record) error

	// Search returns the topK records most similar to vector.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// MatchAny returns up to limit records whose text contains any of words.
	// Returned records carry no embedding.
	MatchAny(ctx context.Context, words []string, limit int) ([]Record, error)

	// DeleteByDoc removes every record of a document, returning the count.
	DeleteByDoc(ctx context.Context, docID string) (int, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// Record is one indexed passage.
type Record struct {
	ID        string
	DocID     string
	Source    string
	Category  corpus.Category
	StartLine int
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}

func (r Record) passage(score float64) Passage {
	return Passage{
		ID:       r.ID,
		Text:     r.Text,
		Source:   r.Source,
		DocID:    r.DocID,
		Category: r.Category,
		Score:    score,
	}
}
