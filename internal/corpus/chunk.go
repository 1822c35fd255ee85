package corpus

import "strings"

// Chunk is a contiguous window of document lines.
type Chunk struct {
	Text      string
	StartLine int
}

// Split cuts lines into windows of size lines, each overlapping the previous
// by overlap lines. Windows with no visible text are dropped.
func Split(lines []string, size, overlap int) []Chunk {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	var out []Chunk
	for start := 0; start < len(lines); start += step {
		end := min(start+size, len(lines))
		text := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		if text != "" {
			out = append(out, Chunk{Text: text, StartLine: start})
		}
		if end == len(lines) {
			break
		}
	}
	return out
}
