package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
)

const DefaultMaxUploadBytes int64 = 8 << 20

var pdfMagic = []byte("%PDF-")

type IngestDocumentUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	queue    ports.IngestionQueue
	maxBytes int64
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.IngestionQueue,
	maxBytes int64,
) *IngestDocumentUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &IngestDocumentUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		maxBytes: maxBytes,
	}
}

// Upload stores the PDF, records the document as uploading and hands it to the
// ingestion queue. It returns before any extraction happens.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	ownerID, fileName string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "upload document", errors.New("owner is required"))
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file name is required"))
	}

	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if !bytes.Equal(head[:n], pdfMagic) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("only PDF files are allowed"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(fileName))
	now := time.Now().UTC()

	content := io.LimitReader(io.MultiReader(bytes.NewReader(head), body), uc.maxBytes+1)
	size, err := uc.storage.Save(ctx, storageKey, content)
	if err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if size > uc.maxBytes {
		uc.discardFile(ctx, storageKey)
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"upload document",
			fmt.Errorf("file exceeds %d bytes", uc.maxBytes),
		)
	}

	doc := &domain.Document{
		ID:             id,
		OwnerID:        ownerID,
		FileName:       filepath.Base(fileName),
		FileSizeBytes:  size,
		StoragePath:    storageKey,
		Status:         domain.StatusUploading,
		UploadedAt:     now,
		LastAccessedAt: now,
		UpdatedAt:      now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discardFile(ctx, storageKey)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	req := domain.IngestionRequest{DocumentID: doc.ID, OwnerID: ownerID, RequestedAt: now}
	if err := uc.queue.PublishIngestion(ctx, req); err != nil {
		if delErr := uc.repo.Delete(context.WithoutCancel(ctx), doc.ID, ownerID); delErr != nil {
			slog.Error("rollback_document_failed", "document_id", doc.ID, "error", delErr)
		}
		uc.discardFile(ctx, storageKey)
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return doc, nil
}

func (uc *IngestDocumentUseCase) discardFile(ctx context.Context, key string) {
	if err := uc.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		slog.Warn("discard_upload_failed", "storage_key", key, "error", err)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.pdf"
	}
	return base
}
