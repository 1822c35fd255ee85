package corpus

import (
	"regexp"
	"strings"
)

// blankRunRe matches three or more consecutive blank lines.
var blankRunRe = regexp.MustCompile(`\n(?:[ \t]*\n){3,}`)

// Clean strips extraction artifacts: form feeds, the given watermark
// strings, and runs of 3+ blank lines (collapsed to 2).
func Clean(text string, watermarks []string) string {
	text = strings.ReplaceAll(text, "\f", "")
	for _, wm := range watermarks {
		if wm != "" {
			text = strings.ReplaceAll(text, wm, "")
		}
	}
	text = blankRunRe.ReplaceAllString(text, "\n\n\n")
	return strings.TrimSpace(text)
}
