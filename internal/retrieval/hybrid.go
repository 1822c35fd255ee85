package retrieval

import "sort"

// FusionWeights are the linear weights applied to the semantic and the
// normalized keyword score.
type FusionWeights struct {
	Semantic float64
	Keyword  float64
}

// prefixKey identifies a passage by the first n runes of its text.
func prefixKey(text string, n int) string {
	r := []rune(text)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// fuse merges semantic and keyword rankings by text prefix. A passage found
// in both lists scores w.Semantic*sem + w.Keyword*min(kw/norm, 1); one found
// in a single list keeps only that list's weighted contribution.
func fuse(sem, kw []Passage, w FusionWeights, norm float64, prefixLen, topK int) []Passage {
	type entry struct {
		p     Passage
		score float64
	}
	byKey := make(map[string]*entry, len(sem)+len(kw))
	order := make([]string, 0, len(sem)+len(kw))

	for _, p := range sem {
		k := prefixKey(p.Text, prefixLen)
		if e, ok := byKey[k]; ok {
			// duplicate semantic hit: keep the stronger one
			e.score = max(e.score, w.Semantic*p.Score)
			continue
		}
		byKey[k] = &entry{p: p, score: w.Semantic * p.Score}
		order = append(order, k)
	}

	seenKW := make(map[string]bool, len(kw))
	for _, p := range kw {
		k := prefixKey(p.Text, prefixLen)
		if seenKW[k] {
			continue
		}
		seenKW[k] = true
		contrib := w.Keyword * min(p.Score/norm, 1)
		if e, ok := byKey[k]; ok {
			e.score += contrib
			continue
		}
		byKey[k] = &entry{p: p, score: contrib}
		order = append(order, k)
	}

	out := make([]Passage, 0, len(order))
	for _, k := range order {
		e := byKey[k]
		e.p.Score = e.score
		out = append(out, e.p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
