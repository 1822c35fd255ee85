// Package retrieval selects and runs an evidence-retrieval strategy for a
// classified query: direct document reads, keyword scoring, semantic vector
// search with optional re-ranking, or a hybrid of keyword and semantic.
// Retrieval never fails as a whole; each sub-search degrades to an empty or
// unranked result.
package retrieval

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sage/internal/corpus"
	"github.com/kalambet/sage/internal/intent"
)

// QueryEmbedder turns query text into a vector. *Embedder satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker reorders candidate passages by finer-grained relevance. It
// returns the passages with Score replaced by the reranker's relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []Passage) ([]Passage, error)
}

// Engine is the retrieval fusion engine. It is safe for concurrent use.
type Engine struct {
	cfg      Config
	embedder QueryEmbedder
	store    VectorStore
	reranker Reranker
	corpus   *corpus.Cache
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmbedder sets the query embedder used by semantic search.
func WithEmbedder(q QueryEmbedder) Option { return func(e *Engine) { e.embedder = q } }

// WithStore sets the passage index.
func WithStore(s VectorStore) Option { return func(e *Engine) { e.store = s } }

// WithReranker sets the optional re-ranking pass.
func WithReranker(r Reranker) Option { return func(e *Engine) { e.reranker = r } }

// WithCorpus sets the document cache used for direct reads.
func WithCorpus(c *corpus.Cache) Option { return func(e *Engine) { e.corpus = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.Named("retrieval")
		}
	}
}

// New creates an Engine. Collaborators left unset make the corresponding
// sub-search return nothing.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg.withDefaults(),
		logger: zap.NewNop(),
		tracer: otel.Tracer("github.com/kalambet/sage/internal/retrieval"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Retrieve chooses a mode from the classification and returns ranked
// evidence. topK <= 0 uses the configured default.
func (e *Engine) Retrieve(ctx context.Context, query string, c intent.Classification, topK int) Result {
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	res := Result{Mode: ModeNone, Passages: []Passage{}, Classification: c}

	if c.FastPath || c.Archetype == intent.Chat {
		return res
	}

	ctx, span := e.tracer.Start(ctx, "retrieval.retrieve", trace.WithAttributes(
		attribute.String("archetype", string(c.Archetype)),
		attribute.Int("top_k", topK),
	))
	defer span.End()

	var passages []Passage
	switch c.Archetype {
	case intent.DirectRead:
		res.Mode = ModeDirectRead
		passages = e.directRead(ctx, query)
	case intent.Verbatim:
		if e.embedder == nil {
			res.Mode = ModeKeyword
			passages = e.Keyword(ctx, query, topK)
		} else {
			res.Mode = ModeHybrid
			passages = e.Hybrid(ctx, query, topK, FusionWeights{
				Semantic: e.cfg.VerbatimSemanticWeight,
				Keyword:  e.cfg.VerbatimKeywordWeight,
			})
		}
	default:
		res.Mode = ModeSemantic
		passages = e.weighted(ctx, query, c.Preference, topK)
	}
	if passages != nil {
		res.Passages = passages
	}

	span.SetAttributes(
		attribute.String("mode", string(res.Mode)),
		attribute.Int("passages", len(res.Passages)),
	)
	e.logger.Debug("retrieved",
		zap.String("mode", string(res.Mode)),
		zap.String("archetype", string(c.Archetype)),
		zap.Int("passages", len(res.Passages)),
	)
	return res
}

// Semantic embeds the query, pulls SemanticOverfetch*topK candidates from
// the index, drops those under MinSimilarity, re-ranks when a reranker is
// configured (keeping similarity order if it fails) and truncates to topK.
func (e *Engine) Semantic(ctx context.Context, query string, topK int) []Passage {
	if e.embedder == nil || e.store == nil || topK <= 0 {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("embedding query failed", zap.Error(err))
		return nil
	}
	scored, err := e.store.Search(ctx, vec, topK*e.cfg.SemanticOverfetch)
	if err != nil {
		e.logger.Warn("vector search failed", zap.Error(err))
		return nil
	}

	candidates := make([]Passage, 0, len(scored))
	for _, s := range scored {
		if float64(s.Score) < e.cfg.MinSimilarity {
			continue
		}
		candidates = append(candidates, s.passage(float64(s.Score)))
	}

	if e.reranker != nil && len(candidates) > 1 {
		reranked, err := e.reranker.Rerank(ctx, query, candidates)
		if err != nil {
			e.logger.Warn("rerank failed, keeping similarity order", zap.Error(err))
		} else {
			candidates = reranked
		}
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// Keyword scores index candidates containing any query word.
func (e *Engine) Keyword(ctx context.Context, query string, topK int) []Passage {
	pool := e.keywordPool(ctx, query)
	return rankKeyword(query, pool, e.cfg, topK)
}

func (e *Engine) keywordPool(ctx context.Context, query string) []Passage {
	if e.store == nil {
		return nil
	}
	words := queryWords(query, e.cfg.MinWordLen)
	records, err := e.store.MatchAny(ctx, words, e.cfg.KeywordPoolSize)
	if err != nil {
		e.logger.Warn("keyword candidate lookup failed", zap.Error(err))
		return nil
	}
	pool := make([]Passage, len(records))
	for i, r := range records {
		pool[i] = r.passage(0)
	}
	return pool
}

// Hybrid runs semantic search (over-fetched) and keyword candidate lookup
// concurrently, scores keywords over the union of both candidate sets, and
// fuses the two rankings with w.
func (e *Engine) Hybrid(ctx context.Context, query string, topK int, w FusionWeights) []Passage {
	over := topK * e.cfg.WeightedOverfetch

	var sem, pool []Passage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sem = e.Semantic(gctx, query, over)
		return nil
	})
	g.Go(func() error {
		pool = e.keywordPool(gctx, query)
		return nil
	})
	_ = g.Wait()

	seen := make(map[string]bool, len(sem)+len(pool))
	union := make([]Passage, 0, len(sem)+len(pool))
	for _, p := range append(append([]Passage{}, sem...), pool...) {
		k := prefixKey(p.Text, e.cfg.PrefixKeyLen)
		if seen[k] {
			continue
		}
		seen[k] = true
		union = append(union, p)
	}
	kw := rankKeyword(query, union, e.cfg, over)

	return fuse(sem, kw, w, e.cfg.KeywordNorm, e.cfg.PrefixKeyLen, topK)
}

// weighted runs semantic search over-fetched by WeightedOverfetch, scales
// each score by the preference weight of its category and re-sorts.
func (e *Engine) weighted(ctx context.Context, query string, pref intent.SourcePreference, topK int) []Passage {
	return applyPreference(e.Semantic(ctx, query, topK*e.cfg.WeightedOverfetch), pref, topK)
}

func applyPreference(passages []Passage, pref intent.SourcePreference, topK int) []Passage {
	for i := range passages {
		passages[i].Score *= categoryWeight(pref, passages[i].Category)
	}
	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	if len(passages) > topK {
		passages = passages[:topK]
	}
	return passages
}

func categoryWeight(pref intent.SourcePreference, c corpus.Category) float64 {
	if c == corpus.Secondary {
		return pref.Secondary
	}
	return pref.Primary
}
