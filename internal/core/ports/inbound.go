package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

// DocumentUploader is the inbound contract for upload orchestration.
type DocumentUploader interface {
	Upload(ctx context.Context, ownerID, fileName string, body io.Reader) (*domain.Document, error)
}

// DocumentService is the owner-scoped read/delete/reingest model for documents.
type DocumentService interface {
	List(ctx context.Context, ownerID string) ([]domain.Document, error)
	Get(ctx context.Context, documentID, ownerID string) (*domain.Document, error)
	Delete(ctx context.Context, documentID, ownerID string) error
	Reingest(ctx context.Context, documentID, ownerID string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous ingestion.
type DocumentProcessor interface {
	Process(ctx context.Context, req domain.IngestionRequest) error
}

// Retriever assembles grounding context for one chat turn.
type Retriever interface {
	Retrieve(ctx context.Context, documentID, ownerID, query string) (*domain.RetrievalResult, error)
}

// ChatService answers one chat turn and reads chat history.
type ChatService interface {
	Send(ctx context.Context, documentID, ownerID, message string) (*domain.ChatReply, error)
	History(ctx context.Context, documentID, ownerID string) ([]domain.ChatMessage, error)
}
