package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

type fakeStrategy struct {
	out   domain.ExtractedText
	err   error
	block bool
	calls int
}

func (f *fakeStrategy) Extract(ctx context.Context, _ []byte) (domain.ExtractedText, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return domain.ExtractedText{}, ctx.Err()
	}
	return f.out, f.err
}

func TestExtractUsesStructuredText(t *testing.T) {
	structured := &fakeStrategy{out: domain.ExtractedText{Text: "page one\fpage two"}}
	ocr := &fakeStrategy{}

	out, err := New(structured, ocr, Options{}).Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.PageCount != 2 || out.Method != domain.ExtractionStructured {
		t.Fatalf("unexpected result %+v", out)
	}
	if ocr.calls != 0 {
		t.Fatalf("ocr must not run when structured text exists")
	}
}

func TestExtractFallsBackToOCRWhenTextLayerIsBlank(t *testing.T) {
	structured := &fakeStrategy{out: domain.ExtractedText{Text: " \f \n"}}
	ocr := &fakeStrategy{out: domain.ExtractedText{Text: "scanned words"}}

	out, err := New(structured, ocr, Options{}).Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.Method != domain.ExtractionOCR || out.Text != "scanned words" || out.PageCount != 1 {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestExtractFallsBackToOCRWhenStructuredFails(t *testing.T) {
	structured := &fakeStrategy{err: errors.New("malformed xref")}
	ocr := &fakeStrategy{out: domain.ExtractedText{Text: "a\fb\fc"}}

	out, err := New(structured, ocr, Options{}).Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.PageCount != 3 {
		t.Fatalf("expected 3 pages, got %d", out.PageCount)
	}
}

func TestExtractFailsWhenBothPathsFail(t *testing.T) {
	structured := &fakeStrategy{err: errors.New("malformed xref")}
	ocr := &fakeStrategy{out: domain.ExtractedText{Text: "   "}}

	_, err := New(structured, ocr, Options{}).Extract(context.Background(), []byte("%PDF"))
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestExtractReportsOCRTimeout(t *testing.T) {
	structured := &fakeStrategy{out: domain.ExtractedText{Text: ""}}
	ocr := &fakeStrategy{block: true}

	_, err := New(structured, ocr, Options{OCRTimeout: 5 * time.Millisecond}).Extract(context.Background(), []byte("%PDF"))
	if !domain.IsKind(err, domain.ErrExtraction) || !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected extraction timeout, got %v", err)
	}
}

func TestExtractRejectsEmptyInput(t *testing.T) {
	_, err := New(&fakeStrategy{}, &fakeStrategy{}, Options{}).Extract(context.Background(), nil)
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}
