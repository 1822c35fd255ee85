package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// IndexedDocument records the content hash a corpus document was last
// embedded at, so unchanged documents are skipped on re-index.
type IndexedDocument struct {
	DocID        string
	ContentHash  string
	PassageCount int
	EmbedModel   string
	IndexedAt    time.Time
}
