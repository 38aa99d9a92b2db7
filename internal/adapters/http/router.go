package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/pdf-chat/internal/config"
	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
	"github.com/kirillkom/pdf-chat/internal/observability/metrics"
)

const (
	// multipartOverhead leaves room for boundaries and part headers on top of
	// the file size limit.
	multipartOverhead  = 64 << 10
	maxChatBodyBytes   = 64 << 10
	backpressureWait   = 250 * time.Millisecond
	defaultMaxInFlight = 64
)

type Router struct {
	cfg      config.Config
	uploader ports.DocumentUploader
	docs     ports.DocumentService
	chat     ports.ChatService
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	uploader ports.DocumentUploader,
	docs ports.DocumentService,
	chat ports.ChatService,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.Default().MaxUploadBytes
	}
	return &Router{
		cfg:      cfg,
		uploader: uploader,
		docs:     docs,
		chat:     chat,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	api := func(h http.HandlerFunc) http.Handler {
		return ownerMiddleware(rt.cfg.APIKey, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("POST /v1/documents", api(rt.uploadDocument))
	mux.Handle("GET /v1/documents", api(rt.listDocuments))
	mux.Handle("GET /v1/documents/{id}", api(rt.getDocument))
	mux.Handle("DELETE /v1/documents/{id}", api(rt.deleteDocument))
	mux.Handle("POST /v1/documents/{id}/reingest", api(rt.reingestDocument))
	mux.Handle("GET /v1/documents/{id}/chat", api(rt.chatHistory))
	mux.Handle("POST /v1/documents/{id}/chat", api(rt.sendChat))

	maxInFlight := rt.cfg.APIMaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, maxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = recoverMiddleware(handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverhead)

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart/form-data body is required")))
		return
	}

	part, err := nextFilePart(reader)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	defer part.Close()

	doc, err := rt.uploader.Upload(r.Context(), ownerFromContext(r.Context()), part.FileName(), part)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart field 'file' is required"))
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart body: %w", err)
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

func writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(r, "upload exceeds size limit"))
		return
	}
	writeError(w, r, err)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.docs.List(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.docs.Get(r.Context(), r.PathValue("id"), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.docs.Delete(r.Context(), r.PathValue("id"), ownerFromContext(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) reingestDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.docs.Reingest(r.Context(), r.PathValue("id"), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) chatHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := rt.chat.History(r.Context(), r.PathValue("id"), ownerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (rt *Router) sendChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "send chat message", errors.New("invalid json")))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "send chat message", errors.New("message is required")))
		return
	}

	reply, err := rt.chat.Send(r.Context(), r.PathValue("id"), ownerFromContext(r.Context()), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_error",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody(r, message))
}

func errorBody(r *http.Request, message string) map[string]string {
	body := map[string]string{"error": message}
	if id := requestIDFromContext(r.Context()); id != "" {
		body["request_id"] = id
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
