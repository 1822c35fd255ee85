// Package ingest embeds corpus documents into the passage index.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kalambet/sage/internal/corpus"
	"github.com/kalambet/sage/internal/retrieval"
	"github.com/kalambet/sage/internal/storage"
)

const (
	defaultChunkLines   = 12
	defaultOverlapLines = 2
	defaultInterval     = 10 * time.Minute
)

// StateStore records what has been indexed.
type StateStore interface {
	GetIndexedDocument(ctx context.Context, docID string) (storage.IndexedDocument, error)
	SaveIndexedDocument(ctx context.Context, d storage.IndexedDocument) error
	DeleteIndexedDocument(ctx context.Context, docID string) error
	ListIndexedDocuments(ctx context.Context) ([]storage.IndexedDocument, error)
}

// BatchEmbedder embeds many texts at once. *retrieval.Embedder satisfies it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// PassageWriter replaces a document's passages in the index.
type PassageWriter interface {
	Insert(ctx context.Context, records []retrieval.Record) error
	DeleteByDoc(ctx context.Context, docID string) (int, error)
}

// Options tunes chunking.
type Options struct {
	ChunkLines   int
	OverlapLines int
}

// Indexer keeps the passage index in step with the corpus manifest.
type Indexer struct {
	corpus   *corpus.Cache
	state    StateStore
	embedder BatchEmbedder
	passages PassageWriter
	opts     Options
	logger   *zap.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(c *corpus.Cache, state StateStore, embedder BatchEmbedder, passages PassageWriter, opts Options, logger *zap.Logger) *Indexer {
	if opts.ChunkLines <= 0 {
		opts.ChunkLines = defaultChunkLines
	}
	if opts.OverlapLines < 0 || opts.OverlapLines >= opts.ChunkLines {
		opts.OverlapLines = defaultOverlapLines
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		corpus:   c,
		state:    state,
		embedder: embedder,
		passages: passages,
		opts:     opts,
		logger:   logger.Named("ingest"),
	}
}

// Report describes one indexing pass.
type Report struct {
	Indexed  []string
	Skipped  []string
	Removed  []string
	Passages int
	// Failed maps document ids to the error that stopped them.
	Failed map[string]error
}

// Err joins every per-document failure, or returns nil.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for id, err := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}
	return errors.Join(errs...)
}

// Index embeds every manifest document whose content or embedding model
// changed since it was last indexed, or all of them when force is set, and
// drops passages of documents no longer in the manifest. A failing document
// is recorded in the report and does not stop the others.
func (x *Indexer) Index(ctx context.Context, force bool) (Report, error) {
	rep := Report{Failed: map[string]error{}}
	m := x.corpus.Manifest()

	inManifest := make(map[string]bool, len(m.Documents))
	for _, d := range m.Documents {
		inManifest[d.ID] = true
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		n, skipped, err := x.indexDocument(ctx, d, force)
		switch {
		case err != nil:
			x.logger.Warn("indexing document failed", zap.String("doc", d.ID), zap.Error(err))
			rep.Failed[d.ID] = err
		case skipped:
			rep.Skipped = append(rep.Skipped, d.ID)
		default:
			rep.Indexed = append(rep.Indexed, d.ID)
			rep.Passages += n
		}
	}

	known, err := x.state.ListIndexedDocuments(ctx)
	if err != nil {
		return rep, fmt.Errorf("listing indexed documents: %w", err)
	}
	for _, k := range known {
		if inManifest[k.DocID] {
			continue
		}
		if _, err := x.passages.DeleteByDoc(ctx, k.DocID); err != nil {
			rep.Failed[k.DocID] = err
			continue
		}
		if err := x.state.DeleteIndexedDocument(ctx, k.DocID); err != nil {
			rep.Failed[k.DocID] = err
			continue
		}
		rep.Removed = append(rep.Removed, k.DocID)
	}

	x.logger.Info("index pass complete",
		zap.Int("indexed", len(rep.Indexed)),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Int("removed", len(rep.Removed)),
		zap.Int("failed", len(rep.Failed)),
		zap.Int("passages", rep.Passages),
	)
	return rep, nil
}

func (x *Indexer) indexDocument(ctx context.Context, d corpus.Document, force bool) (int, bool, error) {
	// always read the file as it is now
	x.corpus.Invalidate(d.ID)
	lines, err := x.corpus.Lines(ctx, d.ID)
	if err != nil {
		return 0, false, err
	}
	hash := contentHash(lines)

	prev, err := x.state.GetIndexedDocument(ctx, d.ID)
	switch {
	case err == nil:
		if !force && prev.ContentHash == hash && prev.EmbedModel == x.embedder.Model() {
			return 0, true, nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return 0, false, fmt.Errorf("loading index state: %w", err)
	}

	var texts []string
	var starts []int
	for _, ch := range corpus.Split(lines, x.opts.ChunkLines, x.opts.OverlapLines) {
		text := corpus.Clean(ch.Text, d.Watermarks)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		starts = append(starts, ch.StartLine)
	}

	vecs, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, false, fmt.Errorf("embedding: %w", err)
	}

	now := time.Now().UTC()
	source := d.Title
	if source == "" {
		source = d.ID
	}
	records := make([]retrieval.Record, len(texts))
	for i := range texts {
		records[i] = retrieval.Record{
			ID:        uuid.NewString(),
			DocID:     d.ID,
			Source:    source,
			Category:  d.Category,
			StartLine: starts[i],
			Text:      texts[i],
			Embedding: vecs[i],
			CreatedAt: now,
		}
	}

	if _, err := x.passages.DeleteByDoc(ctx, d.ID); err != nil {
		return 0, false, fmt.Errorf("deleting stale passages: %w", err)
	}
	if len(records) > 0 {
		if err := x.passages.Insert(ctx, records); err != nil {
			return 0, false, fmt.Errorf("inserting passages: %w", err)
		}
	}
	if err := x.state.SaveIndexedDocument(ctx, storage.IndexedDocument{
		DocID:        d.ID,
		ContentHash:  hash,
		PassageCount: len(records),
		EmbedModel:   x.embedder.Model(),
		IndexedAt:    now,
	}); err != nil {
		return 0, false, fmt.Errorf("saving index state: %w", err)
	}

	x.logger.Debug("indexed document", zap.String("doc", d.ID), zap.Int("passages", len(records)))
	return len(records), false, nil
}

// Run re-indexes every interval until ctx is cancelled. Unchanged documents
// are skipped, so a pass over a stable corpus costs one read per document.
func (x *Indexer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := x.Index(ctx, false); err != nil && ctx.Err() == nil {
			x.logger.Error("index pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func contentHash(lines []string) string {
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
