package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetForOwner(ctx context.Context, id, ownerID string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	// UpdateStatus moves the document to status only when the stored status is
	// an allowed predecessor; otherwise it fails with domain.ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, reingest bool, errMessage string) error
	CompleteIngestion(ctx context.Context, id string, outcome domain.IngestionOutcome) error
	TouchAccessed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id, ownerID string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// IngestionQueue publishes/consumes ingestion requests.
type IngestionQueue interface {
	PublishIngestion(ctx context.Context, req domain.IngestionRequest) error
	SubscribeIngestion(ctx context.Context, handler func(context.Context, domain.IngestionRequest) error) error
}

// LeaseStore serializes ingestion runs per document.
type LeaseStore interface {
	Acquire(ctx context.Context, documentID, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, documentID, holder string) error
	// Active reports whether an unexpired lease exists for the document.
	Active(ctx context.Context, documentID string) (bool, error)
}

// TextExtractor turns raw PDF bytes into text and a page count.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (domain.ExtractedText, error)
}

// Chunker splits text into overlapping windows.
type Chunker interface {
	Split(text string) []domain.Chunk
}

// EmbeddingProvider embeds a single text. Errors are returned as-is.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkEmbedder embeds a batch of chunks, substituting the degraded vector for
// chunks whose provider call failed.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, error)
}

// VectorStore indexes chunk vectors and performs tenant-filtered search.
type VectorStore interface {
	Upsert(ctx context.Context, vectors []domain.ChunkVector) error
	Query(ctx context.Context, embedding []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error)
	DeleteByDocument(ctx context.Context, filter domain.VectorFilter) error
	// DeleteFromIndex removes vectors of the document with chunk_index >= fromIndex.
	DeleteFromIndex(ctx context.Context, filter domain.VectorFilter, fromIndex int) error
}

// AnswerGenerator calls the chat-completion provider.
type AnswerGenerator interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// ChatRepository persists chat sessions and messages.
type ChatRepository interface {
	// GetSession returns nil without error when no session exists yet.
	GetSession(ctx context.Context, documentID, ownerID string) (*domain.ChatSession, error)
	// AppendTurn creates the session if needed and stores both messages in one
	// transaction. It returns the id of the session the turn was appended to.
	AppendTurn(ctx context.Context, session domain.ChatSession, user, assistant domain.ChatMessage) (string, error)
	DeleteByDocument(ctx context.Context, documentID, ownerID string) error
}
