package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kirillkom/pdf-chat/internal/config"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
	"github.com/kirillkom/pdf-chat/internal/core/usecase"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/chunking"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/extractor"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/extractor/ocr"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/resilience"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/vector/memory"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/vector/pgvector"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/vector/qdrant"
)

// Observers lets each binary attach its own metrics to the shared wiring.
// Nil fields are allowed.
type Observers struct {
	RAG       usecase.RAGObserver
	Ingestion usecase.IngestionObserver
	Breaker   resilience.StateObserver
}

type App struct {
	Config config.Config

	Queue     *nats.Queue
	Documents ports.DocumentRepository
	VectorDB  ports.VectorStore

	UploadUC    ports.DocumentUploader
	DocumentsUC ports.DocumentService
	ChatUC      ports.ChatService
	ProcessUC   ports.DocumentProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, name string, observers Observers) (*App, error) {
	executor := resilience.NewExecutor(cfg.Resilience())
	if observers.Breaker != nil {
		executor.WithStateObserver(observers.Breaker)
	}

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.PoolConfig{
		MaxOpenConns: cfg.PostgresMaxOpenConns,
		MaxIdleConns: cfg.PostgresMaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	vectorDB, extraDDL, err := newVectorStore(cfg, db, executor)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, db, extraDDL...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name:               name,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	chunker, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	ollamaClient := ollama.New(ollama.Config{
		BaseURL:    cfg.OllamaURL,
		ChatModel:  cfg.OllamaGenModel,
		EmbedModel: cfg.OllamaEmbedModel,
		Dimension:  cfg.EmbeddingDimension,
	}, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	documents := postgres.NewDocumentRepository(db)
	chats := postgres.NewChatRepository(db)
	leases := postgres.NewLeaseRepository(db)

	hostname, _ := os.Hostname()
	retrieval := usecase.NewRetrievalUseCase(
		embedder,
		vectorDB,
		usecase.NewContextAssembler(cfg.ContextMaxChars),
		usecase.RetrievalOptions{
			TopK:         cfg.RAGTopK,
			EmbedTimeout: config.Seconds(cfg.EmbedTimeoutSeconds),
			QueryTimeout: config.Seconds(cfg.VectorTimeoutSeconds),
		},
	)
	processUC := usecase.NewProcessDocumentUseCase(
		documents,
		storage,
		leases,
		newTextExtractor(cfg),
		chunker,
		usecase.NewBatchEmbedder(embedder, usecase.BatchEmbedderOptions{
			Concurrency:  cfg.EmbedConcurrency,
			RateLimitRPS: cfg.EmbedRateLimitRPS,
			Timeout:      config.Seconds(cfg.EmbedTimeoutSeconds),
			Dimension:    cfg.EmbeddingDimension,
		}),
		vectorDB,
		observers.Ingestion,
		usecase.ProcessOptions{
			LeaseHolder:   fmt.Sprintf("%s@%s:%d", name, hostname, os.Getpid()),
			LeaseTTL:      config.Seconds(cfg.LeaseTTLSeconds),
			UpsertTimeout: config.Seconds(cfg.VectorTimeoutSeconds),
			DeleteTimeout: config.Seconds(cfg.VectorTimeoutSeconds),
		},
	)

	return &App{
		Config:    cfg,
		Queue:     queue,
		Documents: documents,
		VectorDB:  vectorDB,

		UploadUC: usecase.NewIngestDocumentUseCase(documents, storage, queue, cfg.MaxUploadBytes),
		DocumentsUC: usecase.NewDocumentsUseCase(documents, chats, storage, vectorDB, queue, leases, usecase.DocumentsOptions{
			DeleteTimeout: config.Seconds(cfg.VectorTimeoutSeconds),
		}),
		ChatUC: usecase.NewChatUseCase(documents, chats, retrieval, generator, observers.RAG, usecase.ChatOptions{
			GenerateTimeout: config.Seconds(cfg.GenerateTimeoutSeconds),
		}),
		ProcessUC: processUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// newVectorStore also returns the DDL the backend needs inside the shared
// schema transaction.
func newVectorStore(cfg config.Config, db *sql.DB, executor *resilience.Executor) (ports.VectorStore, []string, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendQdrant:
		return qdrant.New(qdrant.Config{
			BaseURL:        cfg.QdrantURL,
			Collection:     cfg.QdrantCollection,
			Dimension:      cfg.EmbeddingDimension,
			RequestTimeout: config.Seconds(cfg.VectorTimeoutSeconds),
		}, executor), nil, nil
	case config.VectorBackendPgvector:
		store := pgvector.NewStore(db, cfg.EmbeddingDimension)
		return store, store.SchemaStatements(), nil
	case config.VectorBackendMemory:
		slog.Warn("vector_backend_in_memory", "reason", "vectors are lost on restart and not shared between processes")
		return memory.NewStore(cfg.EmbeddingDimension), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// newTextExtractor always wires the OCR fallback. Missing OCR tools only
// produce a warning here; scanned documents then fail with an extraction error.
func newTextExtractor(cfg config.Config) ports.TextExtractor {
	if err := ocr.CheckAvailable(); err != nil {
		slog.Warn("ocr_unavailable", "error", err)
	}
	return buildTextExtractor(cfg, ocr.New(ocr.Options{Language: cfg.OCRLanguage, DPI: cfg.OCRDPI}))
}

func buildTextExtractor(cfg config.Config, recognizer ports.TextExtractor) ports.TextExtractor {
	return extractor.New(pdf.NewExtractor(), recognizer, extractor.Options{
		StructuredTimeout: config.Seconds(cfg.ExtractTimeoutSeconds),
		OCRTimeout:        config.Seconds(cfg.OCRTimeoutSeconds),
	})
}

// ProcessTimeout bounds one ingestion run in the worker.
func ProcessTimeout(cfg config.Config) time.Duration {
	if d := config.Seconds(cfg.ProcessTimeoutSeconds); d > 0 {
		return d
	}
	return 10 * time.Minute
}
