package reranking

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/sage/internal/engine"
	"github.com/kalambet/sage/internal/llm"
	"github.com/kalambet/sage/internal/retrieval"
)

const (
	defaultConcurrency = 3
	defaultLLMTimeout  = 10 * time.Second
)

// Chatter is the slice of engine.Engine the LLM reranker needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message, reply engine.JSONReply) (string, error)
}

// LLMReranker asks a local model to score each (query, passage) pair.
// Scoring runs on at most defaultConcurrency goroutines.
type LLMReranker struct {
	engine  Chatter
	model   string
	timeout time.Duration
	topK    int // early-return threshold; 0 = score all
	logger  *zap.Logger
}

// NewLLMReranker creates an LLMReranker.
func NewLLMReranker(eng Chatter, model string, timeout time.Duration, topK int, logger *zap.Logger) *LLMReranker {
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMReranker{engine: eng, model: model, timeout: timeout, topK: topK, logger: logger}
}

// Rerank scores passages and returns them best first. A passage whose
// score cannot be obtained keeps its original score. If the timeout fires
// before enough passages are scored the context error is returned and the
// caller keeps its own order.
func (r *LLMReranker) Rerank(ctx context.Context, query string, passages []retrieval.Passage) ([]retrieval.Passage, error) {
	if len(passages) == 0 {
		return passages, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	earlyReturnAt := r.topK
	if earlyReturnAt <= 0 || earlyReturnAt >= len(passages) {
		earlyReturnAt = 0
	}

	// Buffered so workers never block on send after collection stops.
	results := make(chan retrieval.Passage, len(passages))
	sem := make(chan struct{}, defaultConcurrency)

	var wg sync.WaitGroup
	for _, p := range passages {
		wg.Add(1)
		go func(p retrieval.Passage) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			score, err := r.score(timeoutCtx, query, p)
			if err != nil {
				if timeoutCtx.Err() != nil {
					return
				}
				r.logger.Debug("rerank score failed, keeping original", zap.String("passage", p.ID), zap.Error(err))
				results <- p
				return
			}
			p.Score = score
			p.Reranked = true
			results <- p
		}(p)
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	// No worker outlives the call.
	defer func() {
		cancel()
		wg.Wait()
	}()

	scored := make([]retrieval.Passage, 0, len(passages))
collect:
	for {
		select {
		case p, ok := <-results:
			if !ok {
				break collect
			}
			scored = append(scored, p)
			if earlyReturnAt > 0 && len(scored) >= earlyReturnAt {
				break collect
			}
		case <-timeoutCtx.Done():
			return nil, fmt.Errorf("rerank: %w", timeoutCtx.Err())
		}
	}

	if len(scored) == 0 {
		if err := timeoutCtx.Err(); err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
		return nil, fmt.Errorf("rerank: no passage scored")
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

func (r *LLMReranker) score(ctx context.Context, query string, p retrieval.Passage) (float64, error) {
	prompt := "Rate the relevance of the following text to the query on a scale of 0.0 to 1.0.\n" +
		"Query: " + query + "\n" +
		"Text: " + p.Text + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	reply := engine.JSONReply{{Name: "score", Type: "number", Description: "Relevance score 0.0-1.0"}}
	resp, err := r.engine.Chat(ctx, r.model, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, reply)
	if err != nil {
		return p.Score, err
	}
	s, err := parseScore(resp)
	if err != nil {
		r.logger.Debug("rerank parse failed, using original score", zap.String("resp", resp), zap.Error(err))
		return p.Score, nil
	}
	return min(max(s, 0), 1), nil
}

// parseScore extracts {"score": x} from a model reply that may be wrapped
// in a markdown fence or surrounded by filler.
func parseScore(resp string) (float64, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return 0, fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return 0, fmt.Errorf("unmarshal score: %w", err)
	}
	if obj.Score == nil {
		return 0, fmt.Errorf("missing score field")
	}
	return *obj.Score, nil
}
