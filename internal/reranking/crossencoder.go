package reranking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/sage/internal/llm"
	"github.com/kalambet/sage/internal/retrieval"
)

const defaultCrossEncoderTimeout = 5 * time.Second

// CrossEncoder calls a /rerank endpoint in the Jina/Cohere shape:
// {model, query, documents, top_n} in, results[{index, relevance_score}] out.
type CrossEncoder struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewCrossEncoder creates a client posting to baseURL + "/rerank". A URL
// already ending in /rerank is used as is.
func NewCrossEncoder(baseURL, apiKey, model string, timeout time.Duration) *CrossEncoder {
	if timeout <= 0 {
		timeout = defaultCrossEncoderTimeout
	}
	u := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(u, "/rerank") {
		u += "/rerank"
	}
	return &CrossEncoder{
		url:        u,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank returns the passages the endpoint scored, best first, with Score
// set to the relevance score and Reranked set.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, passages []retrieval.Passage) ([]retrieval.Passage, error) {
	if len(passages) == 0 {
		return passages, nil
	}

	docs := make([]string, len(passages))
	for i, p := range passages {
		docs[i] = p.Text
	}
	body, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Documents: docs, TopN: len(docs)})
	if err != nil {
		return nil, fmt.Errorf("marshaling rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &llm.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("rerank response has no results")
	}

	ranked := make([]retrieval.Passage, 0, len(out.Results))
	seen := make(map[int]bool, len(out.Results))
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(passages) || seen[r.Index] {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
		seen[r.Index] = true
		p := passages[r.Index]
		p.Score = r.RelevanceScore
		p.Reranked = true
		ranked = append(ranked, p)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}
