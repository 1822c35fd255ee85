package retrieval

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kalambet/sage/internal/corpus"
)

var (
	pageRe    = regexp.MustCompile(`\bpage\s+(\d+)\b`)
	chapterRe = regexp.MustCompile(`\bchapter\s+([a-z0-9]+)\b`)
	markerRe  = regexp.MustCompile(`\b(foreword|preface|introduction|prologue)\b`)
)

var numberWords = []string{"", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",
	"eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen", "twenty"}

var romanNumerals = []string{"", "i", "ii", "iii", "iv", "v", "vi", "vii", "viii", "ix", "x",
	"xi", "xii", "xiii", "xiv", "xv", "xvi", "xvii", "xviii", "xix", "xx"}

// chapterAliases returns the spellings a chapter token may take in a
// document heading: digits, English words and roman numerals.
func chapterAliases(tok string) []string {
	n, err := strconv.Atoi(tok)
	if err != nil {
		for i, w := range numberWords {
			if i > 0 && (w == tok || romanNumerals[i] == tok) {
				n = i
				break
			}
		}
	}
	if n <= 0 || n >= len(numberWords) {
		return []string{tok}
	}
	return []string{strconv.Itoa(n), numberWords[n], romanNumerals[n]}
}

// readOffset resolves the line a direct read should start at.
func readOffset(query string, lines []string, linesPerPage int) int {
	q := strings.ToLower(query)

	if m := chapterRe.FindStringSubmatch(q); m != nil {
		for _, alias := range chapterAliases(m[1]) {
			re := regexp.MustCompile(`(?i)^\s*chapter\s+` + regexp.QuoteMeta(alias) + `\b`)
			for i, l := range lines {
				if re.MatchString(l) {
					return i
				}
			}
		}
	}

	if m := pageRe.FindStringSubmatch(q); m != nil {
		n, err := strconv.Atoi(m[1])
		switch {
		case errors.Is(err, strconv.ErrRange):
			return len(lines)
		case err == nil && n > 0:
			if linesPerPage <= 0 || n-1 > len(lines)/linesPerPage {
				return len(lines)
			}
			return (n - 1) * linesPerPage
		}
	}

	if m := markerRe.FindStringSubmatch(q); m != nil {
		re := regexp.MustCompile(`(?i)^\s*` + m[1] + `\b`)
		for i, l := range lines {
			if re.MatchString(l) {
				return i
			}
		}
	}

	return 0
}

// directRead returns one synthetic passage holding a window of the document
// the query names, or nil when no document can be read.
func (e *Engine) directRead(ctx context.Context, query string) []Passage {
	if e.corpus == nil {
		return nil
	}
	doc, ok := e.corpus.Manifest().Resolve(query)
	if !ok {
		return nil
	}
	lines, err := e.corpus.Lines(ctx, doc.ID)
	if err != nil {
		e.logger.Warn("direct read failed", zap.String("doc", doc.ID), zap.Error(err))
		return nil
	}

	window := e.cfg.WindowLines
	start := readOffset(query, lines, e.cfg.LinesPerPage)
	if start < 0 || start >= len(lines) {
		start = max(0, len(lines)-window)
	}
	end := min(start+window, len(lines))

	return []Passage{{
		ID:         doc.ID + ":" + strconv.Itoa(start),
		Text:       corpus.Clean(strings.Join(lines[start:end], "\n"), doc.Watermarks),
		Source:     title(doc),
		DocID:      doc.ID,
		Category:   doc.Category,
		Score:      1.0,
		DirectRead: true,
	}}
}

func title(d corpus.Document) string {
	if d.Title != "" {
		return d.Title
	}
	return d.ID
}
