package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

// Extractor reads the text layer of a PDF page by page.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (out domain.ExtractedText, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = domain.ExtractedText{}
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return domain.ExtractedText{}, fmt.Errorf("pdf has no pages")
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return domain.ExtractedText{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.ExtractedText{}, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(strings.ReplaceAll(text, domain.PageBreak, " ")))
	}

	return domain.ExtractedText{
		Text:      strings.Join(pages, domain.PageBreak),
		PageCount: numPages,
		Method:    domain.ExtractionStructured,
	}, nil
}
