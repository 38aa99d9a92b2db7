package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

type docRepoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	createErr   error
	deleteErr   error
	touchErr    error
	touched     []string
	statusCalls []domain.DocumentStatus
	// onGet runs after every GetByID call, letting tests race a deletion
	// against an ingestion run.
	onGet func(calls int)
	gets  int
}

func newDocRepoFake(docs ...domain.Document) *docRepoFake {
	f := &docRepoFake{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		doc := d
		f.docs[doc.ID] = &doc
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	f.gets++
	calls := f.gets
	doc, ok := f.docs[id]
	var out domain.Document
	if ok {
		out = *doc
	}
	hook := f.onGet
	f.mu.Unlock()
	if hook != nil {
		defer hook(calls)
	}
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document by id", fmt.Errorf("id=%s", id))
	}
	return &out, nil
}

func (f *docRepoFake) GetForOwner(_ context.Context, id, ownerID string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	out := *doc
	return &out, nil
}

func (f *docRepoFake) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Document{}
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, reingest bool, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, status)
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update status", fmt.Errorf("id=%s", id))
	}
	if !domain.CanTransition(doc.Status, status, reingest) {
		return domain.WrapError(domain.ErrInvalidTransition, "update status", fmt.Errorf("%s -> %s", doc.Status, status))
	}
	doc.Status = status
	doc.Error = errMessage
	return nil
}

func (f *docRepoFake) CompleteIngestion(_ context.Context, id string, outcome domain.IngestionOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, domain.StatusReady)
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "complete ingestion", fmt.Errorf("id=%s", id))
	}
	if !domain.CanTransition(doc.Status, domain.StatusReady, false) {
		return domain.WrapError(domain.ErrInvalidTransition, "complete ingestion", fmt.Errorf("%s -> ready", doc.Status))
	}
	pages := outcome.PageCount
	doc.Status = domain.StatusReady
	doc.PageCount = &pages
	doc.ChunkCount = outcome.ChunkCount
	doc.DegradedChunks = outcome.DegradedChunks
	doc.IndexWarning = outcome.IndexWarning
	doc.Error = ""
	return nil
}

func (f *docRepoFake) TouchAccessed(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	f.touched = append(f.touched, id)
	if doc, ok := f.docs[id]; ok {
		doc.LastAccessedAt = at
	}
	return nil
}

func (f *docRepoFake) Delete(_ context.Context, id, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	doc, ok := f.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	delete(f.docs, id)
	return nil
}

func (f *docRepoFake) get(id string) (domain.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.Document{}, false
	}
	return *doc, true
}

type storageFake struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
	openErr error
	deleted []string
}

func newStorageFake() *storageFake {
	return &storageFake{files: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = raw
	return int64(len(raw)), nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.files[key]
	if !ok {
		return nil, errors.New("file not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type queueFake struct {
	mu         sync.Mutex
	published  []domain.IngestionRequest
	publishErr error
}

func (f *queueFake) PublishIngestion(_ context.Context, req domain.IngestionRequest) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, req)
	return nil
}

func (f *queueFake) SubscribeIngestion(ctx context.Context, _ func(context.Context, domain.IngestionRequest) error) error {
	<-ctx.Done()
	return nil
}

type leaseFake struct {
	mu       sync.Mutex
	held     map[string]string
	acquired int
	released int
	err      error
}

func newLeaseFake() *leaseFake {
	return &leaseFake{held: map[string]string{}}
}

func (f *leaseFake) Acquire(_ context.Context, documentID, holder string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if current, ok := f.held[documentID]; ok && current != holder {
		return false, nil
	}
	f.held[documentID] = holder
	f.acquired++
	return true, nil
}

func (f *leaseFake) Active(_ context.Context, documentID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.held[documentID]
	return ok, nil
}

func (f *leaseFake) Release(_ context.Context, documentID, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[documentID] == holder {
		delete(f.held, documentID)
		f.released++
	}
	return nil
}

type extractorFake struct {
	result domain.ExtractedText
	err    error
}

func (f *extractorFake) Extract(context.Context, []byte) (domain.ExtractedText, error) {
	return f.result, f.err
}

type chunkerFake struct {
	chunks []domain.Chunk
}

func (f *chunkerFake) Split(string) []domain.Chunk {
	return f.chunks
}

// hashEmbedder builds deterministic bag-of-words vectors so texts sharing
// words score close to each other.
type hashEmbedder struct {
	dim     int
	failFor map[string]error
	calls   int
	mu      sync.Mutex
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	for marker, err := range e.failFor {
		if strings.Contains(text, marker) {
			return nil, err
		}
	}
	dim := e.dim
	if dim <= 0 {
		dim = domain.EmbeddingDimension
	}
	out := make([]float32, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,?!")
		h := 0
		for _, r := range word {
			h = (h*31 + int(r)) % dim
		}
		out[h]++
	}
	return out, nil
}

type vectorStoreFake struct {
	mu          sync.Mutex
	upserted    []domain.ChunkVector
	matches     []domain.VectorMatch
	upsertErr   error
	queryErr    error
	deleteErr   error
	purged      []domain.VectorFilter
	deletedFrom []int
	lastTopK    int
	lastFilter  domain.VectorFilter
}

func (f *vectorStoreFake) Upsert(_ context.Context, vectors []domain.ChunkVector) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, vectors...)
	return nil
}

func (f *vectorStoreFake) Query(ctx context.Context, _ []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTopK = topK
	f.lastFilter = filter
	return f.matches, nil
}

func (f *vectorStoreFake) DeleteByDocument(_ context.Context, filter domain.VectorFilter) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, filter)
	return nil
}

func (f *vectorStoreFake) DeleteFromIndex(_ context.Context, _ domain.VectorFilter, fromIndex int) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedFrom = append(f.deletedFrom, fromIndex)
	return nil
}

type chatRepoFake struct {
	mu        sync.Mutex
	sessions  map[string]*domain.ChatSession
	appendErr error
	deleted   []string
}

func newChatRepoFake() *chatRepoFake {
	return &chatRepoFake{sessions: map[string]*domain.ChatSession{}}
}

func chatKey(documentID, ownerID string) string {
	return documentID + "|" + ownerID
}

func (f *chatRepoFake) GetSession(_ context.Context, documentID, ownerID string) (*domain.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[chatKey(documentID, ownerID)]
	if !ok {
		return nil, nil
	}
	out := *session
	out.Messages = append([]domain.ChatMessage(nil), session.Messages...)
	return &out, nil
}

func (f *chatRepoFake) AppendTurn(_ context.Context, session domain.ChatSession, user, assistant domain.ChatMessage) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := chatKey(session.DocumentID, session.OwnerID)
	stored, ok := f.sessions[key]
	if !ok {
		copySession := session
		copySession.Messages = nil
		stored = &copySession
		f.sessions[key] = stored
	}
	stored.Messages = append(stored.Messages, user, assistant)
	stored.LastMessageAt = assistant.Timestamp
	return stored.ID, nil
}

func (f *chatRepoFake) DeleteByDocument(_ context.Context, documentID, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, chatKey(documentID, ownerID))
	f.deleted = append(f.deleted, documentID)
	return nil
}

type generatorFake struct {
	answer     string
	err        error
	lastSystem string
	lastUser   string
}

func (f *generatorFake) Generate(_ context.Context, systemPrompt, userMessage string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userMessage
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type retrieverFake struct {
	result *domain.RetrievalResult
	err    error
}

func (f *retrieverFake) Retrieve(context.Context, string, string, string) (*domain.RetrievalResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type ragObserverFake struct {
	sourceCounts []int
}

func (f *ragObserverFake) RecordRAGObservation(_ string, sourceCount int, _ time.Duration) {
	f.sourceCounts = append(f.sourceCounts, sourceCount)
}

type ingestionObserverFake struct {
	methods  []domain.ExtractionMethod
	outcomes []domain.IngestionOutcome
}

func (f *ingestionObserverFake) ObserveIngestion(method domain.ExtractionMethod, outcome domain.IngestionOutcome) {
	f.methods = append(f.methods, method)
	f.outcomes = append(f.outcomes, outcome)
}
