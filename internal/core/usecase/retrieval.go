package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
)

const DefaultTopK = 5

type RetrievalOptions struct {
	TopK         int
	EmbedTimeout time.Duration
	QueryTimeout time.Duration
}

// RetrievalUseCase embeds a chat message, searches the document's vectors and
// assembles the grounding context. Every failure is returned; there is no
// silent fallback to an empty context.
type RetrievalUseCase struct {
	embedder  ports.EmbeddingProvider
	vectorDB  ports.VectorStore
	assembler *ContextAssembler
	opts      RetrievalOptions
}

func NewRetrievalUseCase(
	embedder ports.EmbeddingProvider,
	vectorDB ports.VectorStore,
	assembler *ContextAssembler,
	opts RetrievalOptions,
) *RetrievalUseCase {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if assembler == nil {
		assembler = NewContextAssembler(DefaultContextMaxChars)
	}
	return &RetrievalUseCase{
		embedder:  embedder,
		vectorDB:  vectorDB,
		assembler: assembler,
		opts:      opts,
	}
}

func (uc *RetrievalUseCase) Retrieve(ctx context.Context, documentID, ownerID, query string) (*domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve context", fmt.Errorf("query is empty"))
	}
	filter := domain.VectorFilter{DocumentID: documentID, OwnerID: ownerID}
	if err := filter.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve context", err)
	}

	var queryVector []float32
	err := withTimeout(ctx, uc.opts.EmbedTimeout, "embed query", func(callCtx context.Context) error {
		v, err := uc.embedder.Embed(callCtx, query)
		queryVector = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", wrapKind(domain.ErrEmbeddingProvider, "embed query", err))
	}

	var matches []domain.VectorMatch
	err = withTimeout(ctx, uc.opts.QueryTimeout, "query vectors", func(callCtx context.Context) error {
		m, err := uc.vectorDB.Query(callCtx, queryVector, uc.opts.TopK, filter)
		matches = m
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", wrapKind(domain.ErrVectorStore, "query vectors", err))
	}

	assembled := uc.assembler.Assemble(matches)
	return &domain.RetrievalResult{
		Context: assembled.Text,
		Matches: assembled.Included,
	}, nil
}
