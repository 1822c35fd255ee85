package composer

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/sage/internal/llm"
	"github.com/kalambet/sage/internal/retrieval"
)

const (
	defaultMaxEvidenceTokens = 4000
	defaultMaxHistoryTokens  = 2000
)

// Turn is one prior conversational turn as supplied by the caller.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Composer turns retrieved passages and prior turns into the text and
// messages a pipeline stage is given, keeping each within a token budget.
type Composer struct {
	MaxEvidenceTokens int
	MaxHistoryTokens  int
}

// New creates a Composer. Budgets <= 0 use the defaults (4000 and 2000).
func New(maxEvidenceTokens, maxHistoryTokens int) *Composer {
	if maxEvidenceTokens <= 0 {
		maxEvidenceTokens = defaultMaxEvidenceTokens
	}
	if maxHistoryTokens <= 0 {
		maxHistoryTokens = defaultMaxHistoryTokens
	}
	return &Composer{MaxEvidenceTokens: maxEvidenceTokens, MaxHistoryTokens: maxHistoryTokens}
}

// Evidence formats passages as numbered entries, best first, dropping those
// that no longer fit the budget. A direct-read passage is always kept and
// truncated to the budget if needed.
func (c *Composer) Evidence(passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return ""
	}

	sorted := make([]retrieval.Passage, len(passages))
	copy(sorted, passages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DirectRead != sorted[j].DirectRead {
			return sorted[i].DirectRead
		}
		return sorted[i].Score > sorted[j].Score
	})

	remaining := c.MaxEvidenceTokens
	var sb strings.Builder
	n := 0
	for _, p := range sorted {
		entry := formatPassage(n+1, p)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			if !p.DirectRead || n > 0 {
				continue
			}
			entry = truncateTokens(entry, remaining)
			tokens = remaining
		}
		sb.WriteString(entry)
		remaining -= tokens
		n++
	}
	return strings.TrimSpace(sb.String())
}

func formatPassage(n int, p retrieval.Passage) string {
	if p.DirectRead {
		return fmt.Sprintf("[%d] %s (%s, direct read)\n%s\n\n", n, p.Source, p.Category, p.Text)
	}
	return fmt.Sprintf("[%d] %s (%s, relevance %.2f)\n%s\n\n", n, p.Source, p.Category, p.Score, p.Text)
}

// Messages converts prior turns plus the current query into chat messages.
// The oldest turns are dropped first once the history budget is spent.
// Turns with an unknown role or no text are skipped.
func (c *Composer) Messages(history []Turn, query string) []llm.Message {
	remaining := c.MaxHistoryTokens
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		t := EstimateTokens(history[i].Text)
		if t > remaining {
			break
		}
		remaining -= t
		start = i
	}

	msgs := make([]llm.Message, 0, len(history)-start+1)
	for _, t := range history[start:] {
		role := normalizeRole(t.Role)
		if role == "" || strings.TrimSpace(t.Text) == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: query})
}

func normalizeRole(r string) string {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "user", "human":
		return llm.RoleUser
	case "assistant", "ai", "bot", "model":
		return llm.RoleAssistant
	}
	return ""
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func truncateTokens(text string, tokens int) string {
	limit := tokens * 4
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	// avoid splitting a multi-byte rune
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "\n\n"
}
