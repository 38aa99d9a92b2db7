// Package memory is an in-process vector store using brute-force cosine
// similarity. It backs local runs and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

type Store struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string]domain.ChunkVector
}

func NewStore(dimension int) *Store {
	if dimension <= 0 {
		dimension = domain.EmbeddingDimension
	}
	return &Store{
		dimension: dimension,
		vectors:   make(map[string]domain.ChunkVector),
	}
}

func (s *Store) Upsert(_ context.Context, vectors []domain.ChunkVector) error {
	for _, v := range vectors {
		if v.ID == "" || v.DocumentID == "" || v.OwnerID == "" {
			return domain.WrapError(domain.ErrVectorStore, "memory upsert", fmt.Errorf("vector %q is missing id, document_id or owner_id", v.ID))
		}
		if len(v.Embedding) != s.dimension {
			return domain.WrapError(domain.ErrVectorStore, "memory upsert", fmt.Errorf("vector %q has dimension %d, expected %d", v.ID, len(v.Embedding), s.dimension))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		v.Embedding = slices.Clone(v.Embedding)
		s.vectors[v.ID] = v
	}
	return nil
}

func (s *Store) Query(_ context.Context, embedding []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	if err := filter.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrVectorStore, "memory query", err)
	}
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	matches := make([]domain.VectorMatch, 0)
	for _, v := range s.vectors {
		if v.DocumentID != filter.DocumentID || v.OwnerID != filter.OwnerID {
			continue
		}
		matches = append(matches, domain.VectorMatch{
			ID:         v.ID,
			DocumentID: v.DocumentID,
			OwnerID:    v.OwnerID,
			ChunkIndex: v.ChunkIndex,
			Text:       v.Text,
			PageStart:  v.PageStart,
			PageEnd:    v.PageEnd,
			Degraded:   v.Degraded,
			Similarity: cosine(v.Embedding, embedding),
		})
	}
	s.mu.RUnlock()

	slices.SortFunc(matches, func(a, b domain.VectorMatch) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) DeleteByDocument(_ context.Context, filter domain.VectorFilter) error {
	return s.deleteWhere(filter, "memory delete", func(domain.ChunkVector) bool { return true })
}

func (s *Store) DeleteFromIndex(_ context.Context, filter domain.VectorFilter, fromIndex int) error {
	return s.deleteWhere(filter, "memory delete stale", func(v domain.ChunkVector) bool { return v.ChunkIndex >= fromIndex })
}

func (s *Store) deleteWhere(filter domain.VectorFilter, operation string, match func(domain.ChunkVector) bool) error {
	if err := filter.Validate(); err != nil {
		return domain.WrapError(domain.ErrVectorStore, operation, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.vectors {
		if v.DocumentID == filter.DocumentID && v.OwnerID == filter.OwnerID && match(v) {
			delete(s.vectors, id)
		}
	}
	return nil
}

// Len reports the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// cosine is 0 when either vector has zero norm, so degraded vectors never
// outrank real matches.
func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
