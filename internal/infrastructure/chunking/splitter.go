package chunking

import (
	"fmt"
	"strings"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// Splitter slides a window of ChunkSize whitespace tokens over the text,
// advancing by ChunkSize-Overlap tokens per step.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "new splitter", fmt.Errorf("chunk size must be positive, got %d", chunkSize))
	}
	if overlap < 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "new splitter", fmt.Errorf("overlap must not be negative, got %d", overlap))
	}
	if overlap >= chunkSize {
		return nil, domain.WrapError(
			domain.ErrConfiguration,
			"new splitter",
			fmt.Errorf("overlap %d must be smaller than chunk size %d", overlap, chunkSize),
		)
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}, nil
}

type token struct {
	text string
	page int
}

func (s *Splitter) Split(text string) []domain.Chunk {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	out := make([]domain.Chunk, 0, len(tokens)/step+1)
	for start := 0; start < len(tokens); start += step {
		end := start + s.ChunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]

		words := make([]string, len(window))
		for i, tok := range window {
			words[i] = tok.text
		}
		chunk := strings.TrimSpace(strings.Join(words, " "))
		if chunk != "" {
			out = append(out, domain.Chunk{
				Index:     len(out),
				Text:      chunk,
				PageStart: window[0].page,
				PageEnd:   window[len(window)-1].page,
			})
		}
		if end == len(tokens) {
			break
		}
	}
	return out
}

// tokenize splits on whitespace while remembering the 1-based page of every
// token. Pages are delimited by domain.PageBreak.
func tokenize(text string) []token {
	pages := strings.Split(text, domain.PageBreak)
	out := make([]token, 0, len(text)/6)
	for i, page := range pages {
		for _, field := range strings.Fields(page) {
			out = append(out, token{text: field, page: i + 1})
		}
	}
	return out
}
