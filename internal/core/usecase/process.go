package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
)

const DefaultLeaseTTL = 15 * time.Minute

var errDocumentDeleted = errors.New("document deleted during ingestion")

// IngestionObserver records successful ingestion runs.
type IngestionObserver interface {
	ObserveIngestion(method domain.ExtractionMethod, outcome domain.IngestionOutcome)
}

type ProcessOptions struct {
	LeaseHolder    string
	LeaseTTL       time.Duration
	ExtractTimeout time.Duration
	UpsertTimeout  time.Duration
	DeleteTimeout  time.Duration
}

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	leases    ports.LeaseStore
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.ChunkEmbedder
	vectorDB  ports.VectorStore
	observer  IngestionObserver
	opts      ProcessOptions
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	leases ports.LeaseStore,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.ChunkEmbedder,
	vectorDB ports.VectorStore,
	observer IngestionObserver,
	opts ProcessOptions,
) *ProcessDocumentUseCase {
	if opts.LeaseHolder == "" {
		opts.LeaseHolder = uuid.NewString()
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		storage:   storage,
		leases:    leases,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vectorDB:  vectorDB,
		observer:  observer,
		opts:      opts,
	}
}

func (uc *ProcessDocumentUseCase) Process(ctx context.Context, req domain.IngestionRequest) error {
	if req.DocumentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "process document", errors.New("document id is empty"))
	}
	documentID := req.DocumentID

	acquired, err := uc.leases.Acquire(ctx, documentID, uc.opts.LeaseHolder, uc.opts.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire ingestion lease: %w", err)
	}
	if !acquired {
		return domain.WrapError(domain.ErrLeaseHeld, "process document", fmt.Errorf("document %s", documentID))
	}
	defer uc.releaseLease(ctx, documentID)

	slog.Info("ingestion_started", "document_id", documentID, "reingest", req.Reingest)
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, req.Reingest, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, outcome, method, err := uc.processPipeline(ctx, req)
	if err != nil {
		if errors.Is(err, errDocumentDeleted) {
			slog.Info("ingestion_aborted", "document_id", documentID, "reason", err.Error())
			return nil
		}
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.CompleteIngestion(ctx, documentID, outcome); err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			uc.purgeVectors(ctx, doc)
			slog.Info("ingestion_aborted", "document_id", documentID, "reason", errDocumentDeleted.Error())
			return nil
		}
		return fmt.Errorf("set status=ready: %w", err)
	}

	if uc.observer != nil {
		uc.observer.ObserveIngestion(method, outcome)
	}
	slog.Info("ingestion_completed",
		"document_id", documentID,
		"method", string(method),
		"page_count", outcome.PageCount,
		"chunk_count", outcome.ChunkCount,
		"degraded_chunks", outcome.DegradedChunks,
	)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(
	ctx context.Context,
	req domain.IngestionRequest,
) (*domain.Document, domain.IngestionOutcome, domain.ExtractionMethod, error) {
	doc, err := uc.loadDocument(ctx, req)
	if err != nil {
		return nil, domain.IngestionOutcome{}, "", err
	}

	data, err := uc.loadContent(ctx, doc)
	if err != nil {
		return nil, domain.IngestionOutcome{}, "", err
	}

	extracted, err := uc.extractText(ctx, data)
	if err != nil {
		return nil, domain.IngestionOutcome{}, "", err
	}

	chunks, err := uc.chunk(extracted.Text)
	if err != nil {
		return nil, domain.IngestionOutcome{}, "", err
	}

	embedded, err := uc.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, domain.IngestionOutcome{}, "", fmt.Errorf("embed chunks: %w", err)
	}
	degraded := degradedIndices(embedded)
	if len(degraded) > 0 {
		slog.Warn("document_partially_indexed", "document_id", doc.ID, "degraded_chunks", degraded)
	}

	if err := uc.index(ctx, doc, embedded, req.Reingest); err != nil {
		return nil, domain.IngestionOutcome{}, "", err
	}

	if err := uc.ensureStillExists(ctx, doc); err != nil {
		return nil, domain.IngestionOutcome{}, "", err
	}

	outcome := domain.IngestionOutcome{
		PageCount:      extracted.PageCount,
		ChunkCount:     len(chunks),
		DegradedChunks: len(degraded),
	}
	if outcome.DegradedChunks > 0 {
		outcome.IndexWarning = domain.PartiallyIndexedWarning
	}
	return doc, outcome, extracted.Method, nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, req domain.IngestionRequest) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, req.DocumentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil, errDocumentDeleted
		}
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if req.OwnerID != "" && req.OwnerID != doc.OwnerID {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch document by id", errors.New("owner mismatch"))
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) loadContent(ctx context.Context, doc *domain.Document) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored document: %w", err)
	}
	return data, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, data []byte) (domain.ExtractedText, error) {
	var out domain.ExtractedText
	err := withTimeout(ctx, uc.opts.ExtractTimeout, "extract text", func(callCtx context.Context) error {
		extracted, err := uc.extractor.Extract(callCtx, data)
		out = extracted
		return err
	})
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("extract text: %w", wrapKind(domain.ErrExtraction, "extract text", err))
	}
	return out, nil
}

func (uc *ProcessDocumentUseCase) chunk(text string) ([]domain.Chunk, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrExtraction, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) index(ctx context.Context, doc *domain.Document, embedded []domain.EmbeddedChunk, reingest bool) error {
	vectors := make([]domain.ChunkVector, 0, len(embedded))
	for _, chunk := range embedded {
		vectors = append(vectors, domain.ChunkVector{
			ID:         domain.ChunkVectorID(doc.ID, chunk.Index),
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
			PageStart:  chunk.PageStart,
			PageEnd:    chunk.PageEnd,
			Degraded:   chunk.Degraded,
			Embedding:  chunk.Embedding,
		})
	}

	err := withTimeout(ctx, uc.opts.UpsertTimeout, "upsert vectors", func(callCtx context.Context) error {
		return uc.vectorDB.Upsert(callCtx, vectors)
	})
	if err != nil {
		return fmt.Errorf("index chunks in vector store: %w", wrapKind(domain.ErrVectorStore, "upsert vectors", err))
	}

	if !reingest {
		return nil
	}
	filter := domain.VectorFilter{DocumentID: doc.ID, OwnerID: doc.OwnerID}
	err = withTimeout(ctx, uc.opts.DeleteTimeout, "delete stale vectors", func(callCtx context.Context) error {
		return uc.vectorDB.DeleteFromIndex(callCtx, filter, len(vectors))
	})
	if err != nil {
		return fmt.Errorf("delete stale vectors: %w", wrapKind(domain.ErrVectorStore, "delete stale vectors", err))
	}
	return nil
}

// ensureStillExists catches a deletion that raced with this run and removes
// the vectors the run just wrote.
func (uc *ProcessDocumentUseCase) ensureStillExists(ctx context.Context, doc *domain.Document) error {
	_, err := uc.repo.GetByID(ctx, doc.ID)
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("re-check document: %w", err)
	}
	uc.purgeVectors(ctx, doc)
	return errDocumentDeleted
}

func (uc *ProcessDocumentUseCase) purgeVectors(ctx context.Context, doc *domain.Document) {
	if doc == nil {
		return
	}
	filter := domain.VectorFilter{DocumentID: doc.ID, OwnerID: doc.OwnerID}
	err := withTimeout(context.WithoutCancel(ctx), uc.opts.DeleteTimeout, "purge vectors", func(callCtx context.Context) error {
		return uc.vectorDB.DeleteByDocument(callCtx, filter)
	})
	if err != nil {
		slog.Error("purge_vectors_failed", "document_id", doc.ID, "error", err)
	}
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	err := uc.repo.UpdateStatus(context.WithoutCancel(ctx), documentID, domain.StatusError, false, processErr.Error())
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		return nil
	}
	return err
}

func (uc *ProcessDocumentUseCase) releaseLease(ctx context.Context, documentID string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := uc.leases.Release(releaseCtx, documentID, uc.opts.LeaseHolder); err != nil {
		slog.Warn("release_lease_failed", "document_id", documentID, "error", err)
	}
}
