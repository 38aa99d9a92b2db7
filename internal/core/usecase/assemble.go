package usecase

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

const (
	DefaultContextMaxChars = 6000
	ContextDelimiter       = "\n\n---\n\n"
)

// ContextAssembler packs ranked matches into a grounding context bounded in
// characters (runes).
type ContextAssembler struct {
	maxChars int
}

func NewContextAssembler(maxChars int) *ContextAssembler {
	if maxChars <= 0 {
		maxChars = DefaultContextMaxChars
	}
	return &ContextAssembler{maxChars: maxChars}
}

func (a *ContextAssembler) Assemble(matches []domain.VectorMatch) domain.AssembledContext {
	ranked := slices.Clone(matches)
	slices.SortStableFunc(ranked, func(x, y domain.VectorMatch) int {
		if c := cmp.Compare(y.Similarity, x.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(x.ChunkIndex, y.ChunkIndex)
	})

	delimiterLen := utf8.RuneCountInString(ContextDelimiter)
	remaining := a.maxChars

	var b strings.Builder
	out := domain.AssembledContext{}
	for i, match := range ranked {
		separator := 0
		if i > 0 {
			separator = delimiterLen
		}
		need := separator + utf8.RuneCountInString(match.Text)
		if need <= remaining {
			if i > 0 {
				b.WriteString(ContextDelimiter)
			}
			b.WriteString(match.Text)
			remaining -= need
			out.Included = append(out.Included, match)
			continue
		}

		room := remaining - separator
		if room > 0 {
			if i > 0 {
				b.WriteString(ContextDelimiter)
			}
			b.WriteString(truncateRunes(match.Text, room))
			out.Included = append(out.Included, match)
			out.Truncated = true
		}
		break
	}

	out.Text = b.String()
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
