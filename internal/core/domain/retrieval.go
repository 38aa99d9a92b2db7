package domain

type AssembledContext struct {
	Text      string
	Included  []VectorMatch
	Truncated bool
}

type RetrievalResult struct {
	Context string        `json:"context"`
	Matches []VectorMatch `json:"matches"`
}

func (r RetrievalResult) Sources() []Source {
	out := make([]Source, 0, len(r.Matches))
	for _, m := range r.Matches {
		out = append(out, Source{
			ChunkIndex: m.ChunkIndex,
			PageStart:  m.PageStart,
			PageEnd:    m.PageEnd,
			Similarity: m.Similarity,
		})
	}
	return out
}

// Confidence is the best similarity among the matches the answer was grounded on.
func (r RetrievalResult) Confidence() float64 {
	best := 0.0
	for _, m := range r.Matches {
		if m.Similarity > best {
			best = m.Similarity
		}
	}
	return best
}
