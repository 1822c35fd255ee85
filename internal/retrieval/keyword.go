package retrieval

import (
	"sort"
	"strings"
	"unicode"
)

// queryWords lowercases query and returns its distinct words longer than
// minLen, in order of first appearance.
func queryWords(query string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) <= minLen || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// keywordScore counts the query words found as substrings of text and adds
// bonus when the whole query appears.
func keywordScore(query string, words []string, text string, bonus float64) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, w := range words {
		if strings.Contains(lower, w) {
			score++
		}
	}
	phrase := strings.ToLower(strings.TrimSpace(query))
	if phrase != "" && strings.Contains(lower, phrase) {
		score += bonus
	}
	return score
}

// rankKeyword scores every candidate, drops non-matches, and returns the
// topK best with Score set to the raw keyword score.
func rankKeyword(query string, candidates []Passage, cfg Config, topK int) []Passage {
	words := queryWords(query, cfg.MinWordLen)
	out := make([]Passage, 0, len(candidates))
	for _, p := range candidates {
		s := keywordScore(query, words, p.Text, cfg.PhraseBonus)
		if s <= 0 {
			continue
		}
		p.Score = s
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
