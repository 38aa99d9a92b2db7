package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/documents":                "/v1/documents",
		"/v1/documents/abc":            "/v1/documents/{id}",
		"/v1/documents/abc/chat":       "/v1/documents/{id}/chat",
		"/v1/documents/abc/reingest":   "/v1/documents/{id}/reingest",
		"/v1/documents/abc/whatever/x": "/v1/documents/{id}/other",
		"/healthz":                     "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/documents", nil))
	m.RecordRAGObservation("chat", 0, 10*time.Millisecond)
	m.BreakerObserver()("ollama.embed", gobreaker.StateClosed, gobreaker.StateOpen)

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`pdfchat_http_requests_total{method="POST",path="/v1/documents",service="api",status="202"} 1`,
		`pdfchat_rag_no_context_total{endpoint="chat",service="api"} 1`,
		`pdfchat_resilience_breaker_open{operation="ollama.embed",service="api"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q\n%s", want, out)
		}
	}
}

func TestWorkerMetricsCountDegradedChunks(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartDocument()
	m.ObserveIngestion(domain.ExtractionOCR, domain.IngestionOutcome{ChunkCount: 4, DegradedChunks: 2})
	m.FinishDocument(time.Second, nil)
	m.StartDocument()
	m.FinishDocument(time.Millisecond, domain.WrapError(domain.ErrLeaseHeld, "process", errors.New("busy")))

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`pdfchat_worker_degraded_chunks_total{service="worker"} 2`,
		`pdfchat_worker_extraction_total{method="ocr",service="worker"} 1`,
		`pdfchat_worker_document_process_total{service="worker",status="skipped"} 1`,
		`pdfchat_worker_document_process_in_flight{service="worker"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics output missing %q\n%s", want, out)
		}
	}
}
