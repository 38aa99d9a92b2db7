package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
)

type DocumentsOptions struct {
	DeleteTimeout time.Duration
}

// DocumentsUseCase serves owner-scoped document reads and lifecycle commands.
type DocumentsUseCase struct {
	repo     ports.DocumentRepository
	chats    ports.ChatRepository
	storage  ports.ObjectStorage
	vectorDB ports.VectorStore
	queue    ports.IngestionQueue
	leases   ports.LeaseStore
	opts     DocumentsOptions
}

func NewDocumentsUseCase(
	repo ports.DocumentRepository,
	chats ports.ChatRepository,
	storage ports.ObjectStorage,
	vectorDB ports.VectorStore,
	queue ports.IngestionQueue,
	leases ports.LeaseStore,
	opts DocumentsOptions,
) *DocumentsUseCase {
	return &DocumentsUseCase{
		repo:     repo,
		chats:    chats,
		storage:  storage,
		vectorDB: vectorDB,
		queue:    queue,
		leases:   leases,
		opts:     opts,
	}
}

func (uc *DocumentsUseCase) List(ctx context.Context, ownerID string) ([]domain.Document, error) {
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "list documents", errors.New("owner is required"))
	}
	docs, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (uc *DocumentsUseCase) Get(ctx context.Context, documentID, ownerID string) (*domain.Document, error) {
	doc, err := uc.repo.GetForOwner(ctx, documentID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// Delete removes the document record first so a running ingestion sees it gone,
// then purges vectors, chat history and the stored file.
func (uc *DocumentsUseCase) Delete(ctx context.Context, documentID, ownerID string) error {
	doc, err := uc.repo.GetForOwner(ctx, documentID, ownerID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	if err := uc.repo.Delete(ctx, doc.ID, ownerID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	filter := domain.VectorFilter{DocumentID: doc.ID, OwnerID: doc.OwnerID}
	err = withTimeout(ctx, uc.opts.DeleteTimeout, "purge vectors", func(callCtx context.Context) error {
		return uc.vectorDB.DeleteByDocument(callCtx, filter)
	})
	if err != nil {
		return fmt.Errorf("purge vectors: %w", wrapKind(domain.ErrVectorStore, "purge vectors", err))
	}

	if err := uc.chats.DeleteByDocument(ctx, doc.ID, ownerID); err != nil {
		return fmt.Errorf("delete chat sessions: %w", err)
	}

	if err := uc.storage.Delete(ctx, doc.StoragePath); err != nil {
		slog.Warn("delete_stored_file_failed", "document_id", doc.ID, "error", err)
	}
	return nil
}

// Reingest queues a new ingestion run for a document that finished processing,
// or for a processing document whose worker died and left its lease to expire.
func (uc *DocumentsUseCase) Reingest(ctx context.Context, documentID, ownerID string) (*domain.Document, error) {
	doc, err := uc.repo.GetForOwner(ctx, documentID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if !domain.CanTransition(doc.Status, domain.StatusProcessing, true) {
		return nil, domain.WrapError(
			domain.ErrInvalidTransition,
			"reingest document",
			fmt.Errorf("document is %s", doc.Status),
		)
	}
	if doc.Status == domain.StatusProcessing {
		active, err := uc.leases.Active(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("check ingestion lease: %w", err)
		}
		if active {
			return nil, domain.WrapError(
				domain.ErrLeaseHeld,
				"reingest document",
				errors.New("document is being processed"),
			)
		}
	}

	req := domain.IngestionRequest{
		DocumentID:  doc.ID,
		OwnerID:     doc.OwnerID,
		Reingest:    true,
		RequestedAt: time.Now().UTC(),
	}
	if err := uc.queue.PublishIngestion(ctx, req); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return doc, nil
}
