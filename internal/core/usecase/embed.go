package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
)

const DefaultEmbedConcurrency = 8

type BatchEmbedderOptions struct {
	Concurrency  int
	RateLimitRPS float64
	Timeout      time.Duration
	Dimension    int
}

// BatchEmbedder fans chunk embedding out over a bounded number of goroutines.
// A chunk whose provider call fails gets the degraded vector instead of
// failing the batch.
type BatchEmbedder struct {
	provider    ports.EmbeddingProvider
	limiter     *rate.Limiter
	concurrency int
	timeout     time.Duration
	dimension   int
}

func NewBatchEmbedder(provider ports.EmbeddingProvider, opts BatchEmbedderOptions) *BatchEmbedder {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultEmbedConcurrency
	}
	dimension := opts.Dimension
	if dimension <= 0 {
		dimension = domain.EmbeddingDimension
	}

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), max(1, int(opts.RateLimitRPS)))
	}

	return &BatchEmbedder{
		provider:    provider,
		limiter:     limiter,
		concurrency: concurrency,
		timeout:     opts.Timeout,
		dimension:   dimension,
	}
}

func (b *BatchEmbedder) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddedChunk, error) {
	out := make([]domain.EmbeddedChunk, len(chunks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.concurrency)
	for i, chunk := range chunks {
		group.Go(func() error {
			if b.limiter != nil {
				if err := b.limiter.Wait(groupCtx); err != nil {
					if ctxErr := groupCtx.Err(); ctxErr != nil {
						return ctxErr
					}
					// The next token would arrive after the run deadline.
					return domain.WrapError(domain.ErrTimeout, "wait for embedding rate limit", err)
				}
			}

			vector, err := b.embedOne(groupCtx, chunk)
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("chunk_embedding_degraded", "chunk_index", chunk.Index, "error", err)
				out[i] = domain.EmbeddedChunk{Chunk: chunk, Embedding: domain.DegradedVector(b.dimension), Degraded: true}
				return nil
			}
			out[i] = domain.EmbeddedChunk{Chunk: chunk, Embedding: vector}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	return out, nil
}

func (b *BatchEmbedder) embedOne(ctx context.Context, chunk domain.Chunk) ([]float32, error) {
	var vector []float32
	err := withTimeout(ctx, b.timeout, "embed chunk", func(callCtx context.Context) error {
		v, err := b.provider.Embed(callCtx, chunk.Text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, wrapKind(domain.ErrEmbeddingProvider, "embed chunk", err)
	}
	if len(vector) != b.dimension {
		return nil, domain.WrapError(
			domain.ErrEmbeddingProvider,
			"embed chunk",
			fmt.Errorf("embedding dimension %d, expected %d", len(vector), b.dimension),
		)
	}
	return vector, nil
}

// degradedIndices lists the chunk indices that carry the degraded vector.
func degradedIndices(embedded []domain.EmbeddedChunk) []int {
	var out []int
	for _, chunk := range embedded {
		if chunk.Degraded {
			out = append(out, chunk.Index)
		}
	}
	return out
}
