// Package reranking reorders retrieved passages by query relevance, either
// through a hosted cross-encoder endpoint or by asking a local model to
// score each passage.
package reranking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/sage/internal/engine"
	"github.com/kalambet/sage/internal/retrieval"
)

// Mode selects a reranker implementation.
type Mode string

const (
	ModeNone         Mode = "none"
	ModeCrossEncoder Mode = "cross-encoder"
	ModeLLM          Mode = "llm"
)

// Options configures New.
type Options struct {
	Mode    Mode
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	// TopK lets the LLM reranker return as soon as that many passages are
	// scored. Zero scores all of them.
	TopK int
}

// New returns the reranker for opts.Mode. It falls back to NoOp when the
// mode is unknown or its collaborator is missing.
func New(opts Options, eng engine.Engine, logger *zap.Logger) retrieval.Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Mode {
	case ModeCrossEncoder:
		if opts.URL == "" {
			logger.Warn("cross-encoder reranking enabled without url, disabling")
			return NoOp{}
		}
		return NewCrossEncoder(opts.URL, opts.APIKey, opts.Model, opts.Timeout)
	case ModeLLM:
		if eng == nil {
			return NoOp{}
		}
		return NewLLMReranker(eng, opts.Model, opts.Timeout, opts.TopK, logger)
	default:
		return NoOp{}
	}
}

// NoOp passes passages through unchanged.
type NoOp struct{}

func (NoOp) Rerank(_ context.Context, _ string, passages []retrieval.Passage) ([]retrieval.Passage, error) {
	return passages, nil
}
