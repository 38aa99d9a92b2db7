package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

func TestRetrieveBuildsContextFromTenantMatches(t *testing.T) {
	store := &vectorStoreFake{matches: []domain.VectorMatch{
		{ChunkIndex: 2, Similarity: 0.4, Text: "later", PageStart: 2, PageEnd: 2},
		{ChunkIndex: 0, Similarity: 0.8, Text: "earlier", PageStart: 1, PageEnd: 1},
	}}
	uc := NewRetrievalUseCase(&hashEmbedder{dim: 8}, store, NewContextAssembler(1000), RetrievalOptions{TopK: 3})

	result, err := uc.Retrieve(context.Background(), "doc-1", "user-a", "what is it?")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if store.lastTopK != 3 {
		t.Fatalf("expected topK 3, got %d", store.lastTopK)
	}
	if store.lastFilter != (domain.VectorFilter{DocumentID: "doc-1", OwnerID: "user-a"}) {
		t.Fatalf("unexpected filter %+v", store.lastFilter)
	}
	if result.Context != "earlier"+ContextDelimiter+"later" {
		t.Fatalf("unexpected context %q", result.Context)
	}
	if result.Confidence() != 0.8 {
		t.Fatalf("unexpected confidence %v", result.Confidence())
	}
	sources := result.Sources()
	if len(sources) != 2 || sources[0].ChunkIndex != 0 {
		t.Fatalf("unexpected sources %+v", sources)
	}
}

func TestRetrieveRejectsInvalidInput(t *testing.T) {
	uc := NewRetrievalUseCase(&hashEmbedder{dim: 8}, &vectorStoreFake{}, nil, RetrievalOptions{})

	if _, err := uc.Retrieve(context.Background(), "doc-1", "user-a", "   "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty query, got %v", err)
	}
	if _, err := uc.Retrieve(context.Background(), "doc-1", "", "hello"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing owner, got %v", err)
	}
}

func TestRetrieveSurfacesEmbeddingFailure(t *testing.T) {
	embedder := &hashEmbedder{failFor: map[string]error{"hello": errors.New("connection refused")}}
	uc := NewRetrievalUseCase(embedder, &vectorStoreFake{}, nil, RetrievalOptions{})

	_, err := uc.Retrieve(context.Background(), "doc-1", "user-a", "hello")
	if !domain.IsKind(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected embedding provider error, got %v", err)
	}
}

func TestRetrieveSurfacesVectorStoreFailure(t *testing.T) {
	store := &vectorStoreFake{queryErr: errors.New("qdrant down")}
	uc := NewRetrievalUseCase(&hashEmbedder{}, store, nil, RetrievalOptions{})

	_, err := uc.Retrieve(context.Background(), "doc-1", "user-a", "hello")
	if !domain.IsKind(err, domain.ErrVectorStore) {
		t.Fatalf("expected vector store error, got %v", err)
	}
}

type slowStore struct {
	vectorStoreFake
}

func (s *slowStore) Query(ctx context.Context, _ []float32, _ int, _ domain.VectorFilter) ([]domain.VectorMatch, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRetrieveQueryTimeoutIsTimeoutKind(t *testing.T) {
	uc := NewRetrievalUseCase(&hashEmbedder{}, &slowStore{}, nil, RetrievalOptions{QueryTimeout: time.Millisecond})

	_, err := uc.Retrieve(context.Background(), "doc-1", "user-a", "hello")
	if !domain.IsKind(err, domain.ErrTimeout) || !domain.IsKind(err, domain.ErrVectorStore) {
		t.Fatalf("expected timeout vector store error, got %v", err)
	}
}

func TestRetrieveWithNoMatchesReturnsEmptyContext(t *testing.T) {
	uc := NewRetrievalUseCase(&hashEmbedder{}, &vectorStoreFake{}, nil, RetrievalOptions{})

	result, err := uc.Retrieve(context.Background(), "doc-1", "user-a", "hello")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Context != "" || len(result.Matches) != 0 || result.Confidence() != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}
