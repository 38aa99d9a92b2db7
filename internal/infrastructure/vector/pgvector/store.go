// Package pgvector stores chunk vectors in Postgres using the vector
// extension.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

type Store struct {
	db        *sql.DB
	dimension int
}

func NewStore(db *sql.DB, dimension int) *Store {
	if dimension <= 0 {
		dimension = domain.EmbeddingDimension
	}
	return &Store{db: db, dimension: dimension}
}

// SchemaStatements returns the DDL for the chunk_vectors table, to be run
// inside the metadata schema transaction.
func (s *Store) SchemaStatements() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunk_vectors (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text TEXT NOT NULL,
	page_start INTEGER NOT NULL,
	page_end INTEGER NOT NULL,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	embedding vector(%d) NOT NULL
)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_chunk_vectors_tenant ON chunk_vectors(document_id, owner_id)`,
	}
}

func (s *Store) Upsert(ctx context.Context, vectors []domain.ChunkVector) error {
	for _, v := range vectors {
		if v.DocumentID == "" || v.OwnerID == "" {
			return domain.WrapError(domain.ErrVectorStore, "pgvector upsert", fmt.Errorf("vector %q is missing document_id or owner_id", v.ID))
		}
		if len(v.Embedding) != s.dimension {
			return domain.WrapError(domain.ErrVectorStore, "pgvector upsert", fmt.Errorf("vector %q has dimension %d, expected %d", v.ID, len(v.Embedding), s.dimension))
		}
	}
	if len(vectors) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrVectorStore, "pgvector upsert", fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, v := range vectors {
		_, err := tx.ExecContext(ctx, `
INSERT INTO chunk_vectors (id, document_id, owner_id, chunk_index, text, page_start, page_end, degraded, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	owner_id = EXCLUDED.owner_id,
	chunk_index = EXCLUDED.chunk_index,
	text = EXCLUDED.text,
	page_start = EXCLUDED.page_start,
	page_end = EXCLUDED.page_end,
	degraded = EXCLUDED.degraded,
	embedding = EXCLUDED.embedding
`, v.ID, v.DocumentID, v.OwnerID, v.ChunkIndex, v.Text, v.PageStart, v.PageEnd, v.Degraded, pgvector.NewVector(v.Embedding))
		if err != nil {
			return domain.WrapError(domain.ErrVectorStore, "pgvector upsert", fmt.Errorf("insert %s: %w", v.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrVectorStore, "pgvector upsert", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Query ranks by cosine similarity. The degraded zero vector has no defined
// cosine distance, so degraded rows score 0.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	if err := filter.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrVectorStore, "pgvector query", err)
	}
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, owner_id, chunk_index, text, page_start, page_end, degraded,
	CASE WHEN degraded THEN 0 ELSE 1 - (embedding <=> $1) END AS similarity
FROM chunk_vectors
WHERE document_id = $2 AND owner_id = $3
ORDER BY similarity DESC, chunk_index ASC
LIMIT $4
`, pgvector.NewVector(embedding), filter.DocumentID, filter.OwnerID, topK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrVectorStore, "pgvector query", err)
	}
	defer rows.Close()

	out := make([]domain.VectorMatch, 0, topK)
	for rows.Next() {
		var m domain.VectorMatch
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.OwnerID, &m.ChunkIndex, &m.Text, &m.PageStart, &m.PageEnd, &m.Degraded, &m.Similarity); err != nil {
			return nil, domain.WrapError(domain.ErrVectorStore, "pgvector query", fmt.Errorf("scan: %w", err))
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrVectorStore, "pgvector query", fmt.Errorf("iterate: %w", err))
	}
	return out, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, filter domain.VectorFilter) error {
	if err := filter.Validate(); err != nil {
		return domain.WrapError(domain.ErrVectorStore, "pgvector delete", err)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1 AND owner_id = $2`, filter.DocumentID, filter.OwnerID)
	return domain.WrapError(domain.ErrVectorStore, "pgvector delete", err)
}

func (s *Store) DeleteFromIndex(ctx context.Context, filter domain.VectorFilter, fromIndex int) error {
	if err := filter.Validate(); err != nil {
		return domain.WrapError(domain.ErrVectorStore, "pgvector delete stale", err)
	}
	_, err := s.db.ExecContext(ctx, `
DELETE FROM chunk_vectors WHERE document_id = $1 AND owner_id = $2 AND chunk_index >= $3
`, filter.DocumentID, filter.OwnerID, fromIndex)
	return domain.WrapError(domain.ErrVectorStore, "pgvector delete stale", err)
}
