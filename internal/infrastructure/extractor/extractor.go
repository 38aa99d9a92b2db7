// Package extractor combines structured text-layer extraction with an OCR
// fallback for scanned documents.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
)

var errEmptyText = errors.New("no text produced")

type Options struct {
	StructuredTimeout time.Duration
	OCRTimeout        time.Duration
}

// Extractor tries the structured strategy first and falls back to OCR when it
// fails or yields only whitespace.
type Extractor struct {
	structured ports.TextExtractor
	ocr        ports.TextExtractor
	opts       Options
}

func New(structured, ocr ports.TextExtractor, opts Options) *Extractor {
	return &Extractor{structured: structured, ocr: ocr, opts: opts}
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (domain.ExtractedText, error) {
	if len(data) == 0 {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrExtraction, "extract text", errEmptyText)
	}

	out, structuredErr := e.attempt(ctx, "structured extraction", e.structured, data, e.opts.StructuredTimeout)
	if structuredErr == nil {
		return finalize(out, domain.ExtractionStructured), nil
	}
	if err := ctx.Err(); err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrExtraction, "extract text", domain.ClassifyTimeout("extract text", err))
	}

	slog.Info("ocr_fallback", "reason", structuredErr.Error())
	if e.ocr == nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrExtraction, "extract text", structuredErr)
	}

	out, ocrErr := e.attempt(ctx, "ocr", e.ocr, data, e.opts.OCRTimeout)
	if ocrErr != nil {
		return domain.ExtractedText{}, domain.WrapError(
			domain.ErrExtraction,
			"extract text",
			fmt.Errorf("structured: %v; %w", structuredErr, ocrErr),
		)
	}
	return finalize(out, domain.ExtractionOCR), nil
}

func (e *Extractor) attempt(
	ctx context.Context,
	operation string,
	strategy ports.TextExtractor,
	data []byte,
	timeout time.Duration,
) (domain.ExtractedText, error) {
	if strategy == nil {
		return domain.ExtractedText{}, fmt.Errorf("%s: not configured", operation)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := strategy.Extract(ctx, data)
	if err != nil {
		return domain.ExtractedText{}, domain.ClassifyTimeout(operation, fmt.Errorf("%s: %w", operation, err))
	}
	if strings.TrimSpace(strings.ReplaceAll(out.Text, domain.PageBreak, "")) == "" {
		return domain.ExtractedText{}, fmt.Errorf("%s: %w", operation, errEmptyText)
	}
	return out, nil
}

func finalize(out domain.ExtractedText, method domain.ExtractionMethod) domain.ExtractedText {
	return domain.ExtractedText{
		Text:      out.Text,
		PageCount: strings.Count(out.Text, domain.PageBreak) + 1,
		Method:    method,
	}
}
