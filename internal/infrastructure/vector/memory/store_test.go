package memory

import (
	"context"
	"testing"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

func vector(doc, owner string, index int, embedding ...float32) domain.ChunkVector {
	return domain.ChunkVector{
		ID:         domain.ChunkVectorID(doc, index),
		DocumentID: doc,
		OwnerID:    owner,
		ChunkIndex: index,
		Text:       doc + " text",
		Embedding:  embedding,
	}
}

func TestQueryIsolatesTenants(t *testing.T) {
	store := NewStore(2)
	ctx := context.Background()
	err := store.Upsert(ctx, []domain.ChunkVector{
		vector("doc-a", "user-1", 0, 1, 0),
		vector("doc-a", "user-2", 1, 1, 0),
		vector("doc-b", "user-1", 0, 1, 0),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := store.Query(ctx, []float32{1, 0}, 10, domain.VectorFilter{DocumentID: "doc-a", OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].DocumentID != "doc-a" || matches[0].OwnerID != "user-1" {
		t.Fatalf("match crossed tenant boundary: %+v", matches[0])
	}
}

func TestUpsertIsIdempotentByID(t *testing.T) {
	store := NewStore(2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.Upsert(ctx, []domain.ChunkVector{vector("doc-a", "user-1", 0, 1, 0)}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 vector, got %d", store.Len())
	}
}

func TestUpsertRejectsMissingTenantWithoutWriting(t *testing.T) {
	store := NewStore(2)
	err := store.Upsert(context.Background(), []domain.ChunkVector{
		vector("doc-a", "user-1", 0, 1, 0),
		vector("doc-a", "", 1, 1, 0),
	})
	if !domain.IsKind(err, domain.ErrVectorStore) {
		t.Fatalf("expected vector store error, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected nothing written, got %d", store.Len())
	}
}

func TestQueryRanksBySimilarity(t *testing.T) {
	store := NewStore(2)
	ctx := context.Background()
	_ = store.Upsert(ctx, []domain.ChunkVector{
		vector("doc-a", "user-1", 0, 0, 1),
		vector("doc-a", "user-1", 1, 1, 0),
		vector("doc-a", "user-1", 2, 0, 0),
	})

	matches, err := store.Query(ctx, []float32{1, 0}, 2, domain.VectorFilter{DocumentID: "doc-a", OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 2 || matches[0].ChunkIndex != 1 {
		t.Fatalf("unexpected ranking %+v", matches)
	}
	if matches[0].Similarity < 0.99 {
		t.Fatalf("expected similarity ~1, got %f", matches[0].Similarity)
	}
}

func TestQueryRequiresCompleteFilter(t *testing.T) {
	_, err := NewStore(2).Query(context.Background(), []float32{1, 0}, 5, domain.VectorFilter{OwnerID: "user-1"})
	if !domain.IsKind(err, domain.ErrVectorStore) {
		t.Fatalf("expected vector store error, got %v", err)
	}
}

func TestDeleteFromIndexRemovesStaleChunks(t *testing.T) {
	store := NewStore(2)
	ctx := context.Background()
	_ = store.Upsert(ctx, []domain.ChunkVector{
		vector("doc-a", "user-1", 0, 1, 0),
		vector("doc-a", "user-1", 1, 1, 0),
		vector("doc-a", "user-1", 2, 1, 0),
		vector("doc-a", "user-2", 5, 1, 0),
	})

	if err := store.DeleteFromIndex(ctx, domain.VectorFilter{DocumentID: "doc-a", OwnerID: "user-1"}, 1); err != nil {
		t.Fatalf("DeleteFromIndex() error = %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 vectors left, got %d", store.Len())
	}

	if err := store.DeleteByDocument(ctx, domain.VectorFilter{DocumentID: "doc-a", OwnerID: "user-1"}); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected other tenant's vector to survive, got %d", store.Len())
	}
}
