package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

func documentsFixture(docs ...domain.Document) (*DocumentsUseCase, *docRepoFake, *chatRepoFake, *storageFake, *vectorStoreFake, *queueFake) {
	return documentsFixtureWithLeases(newLeaseFake(), docs...)
}

func documentsFixtureWithLeases(leases *leaseFake, docs ...domain.Document) (*DocumentsUseCase, *docRepoFake, *chatRepoFake, *storageFake, *vectorStoreFake, *queueFake) {
	repo := newDocRepoFake(docs...)
	chats := newChatRepoFake()
	storage := newStorageFake()
	store := &vectorStoreFake{}
	queue := &queueFake{}
	return NewDocumentsUseCase(repo, chats, storage, store, queue, leases, DocumentsOptions{}), repo, chats, storage, store, queue
}

func TestListReturnsOnlyOwnersDocumentsNewestFirst(t *testing.T) {
	older := readyDoc("doc-1", "user-a")
	newer := readyDoc("doc-2", "user-a")
	newer.UploadedAt = older.UploadedAt.Add(time.Hour)
	foreign := readyDoc("doc-3", "user-b")
	uc, _, _, _, _, _ := documentsFixture(older, newer, foreign)

	docs, err := uc.List(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "doc-2" || docs[1].ID != "doc-1" {
		t.Fatalf("unexpected documents %+v", docs)
	}
	if _, err := uc.List(context.Background(), ""); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	doc := readyDoc("doc-1", "user-a")
	doc.StoragePath = "doc-1_report.pdf"
	uc, repo, chats, storage, store, _ := documentsFixture(doc)
	storage.files[doc.StoragePath] = []byte("%PDF-")
	chats.sessions[chatKey("doc-1", "user-a")] = &domain.ChatSession{ID: "s1", DocumentID: "doc-1", OwnerID: "user-a"}

	if err := uc.Delete(context.Background(), "doc-1", "user-a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := repo.get("doc-1"); ok {
		t.Fatalf("document still present")
	}
	if len(store.purged) != 1 || store.purged[0].OwnerID != "user-a" {
		t.Fatalf("vectors not purged: %+v", store.purged)
	}
	if len(chats.sessions) != 0 {
		t.Fatalf("chat sessions not deleted")
	}
	if len(storage.files) != 0 {
		t.Fatalf("stored file not deleted")
	}
}

func TestDeleteOtherOwnerIsNotFound(t *testing.T) {
	uc, repo, _, _, store, _ := documentsFixture(readyDoc("doc-1", "user-a"))

	if err := uc.Delete(context.Background(), "doc-1", "user-b"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok := repo.get("doc-1"); !ok || len(store.purged) != 0 {
		t.Fatalf("foreign delete must not touch the document")
	}
}

func TestDeleteReportsVectorStoreFailure(t *testing.T) {
	uc, _, _, _, store, _ := documentsFixture(readyDoc("doc-1", "user-a"))
	store.deleteErr = errors.New("qdrant down")

	if err := uc.Delete(context.Background(), "doc-1", "user-a"); !domain.IsKind(err, domain.ErrVectorStore) {
		t.Fatalf("expected vector store error, got %v", err)
	}
}

func TestReingestQueuesTerminalDocument(t *testing.T) {
	failed := readyDoc("doc-1", "user-a")
	failed.Status = domain.StatusError
	uc, _, _, _, _, queue := documentsFixture(failed)

	doc, err := uc.Reingest(context.Background(), "doc-1", "user-a")
	if err != nil {
		t.Fatalf("Reingest() error = %v", err)
	}
	if doc.ID != "doc-1" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if len(queue.published) != 1 || !queue.published[0].Reingest || queue.published[0].OwnerID != "user-a" {
		t.Fatalf("unexpected published requests %+v", queue.published)
	}
}

func TestReingestRejectsInFlightDocument(t *testing.T) {
	processing := readyDoc("doc-1", "user-a")
	processing.Status = domain.StatusProcessing
	leases := newLeaseFake()
	leases.held["doc-1"] = "worker-1"
	uc, _, _, _, _, queue := documentsFixtureWithLeases(leases, processing)

	if _, err := uc.Reingest(context.Background(), "doc-1", "user-a"); !domain.IsKind(err, domain.ErrLeaseHeld) {
		t.Fatalf("expected lease held, got %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatalf("nothing should be published")
	}
}

func TestReingestQueuesProcessingDocumentWithExpiredLease(t *testing.T) {
	stuck := readyDoc("doc-1", "user-a")
	stuck.Status = domain.StatusProcessing
	uc, _, _, _, _, queue := documentsFixture(stuck)

	if _, err := uc.Reingest(context.Background(), "doc-1", "user-a"); err != nil {
		t.Fatalf("Reingest() error = %v", err)
	}
	if len(queue.published) != 1 || !queue.published[0].Reingest {
		t.Fatalf("expected a reingest request, got %+v", queue.published)
	}
}

func TestReingestRejectsUploadingDocument(t *testing.T) {
	uploading := readyDoc("doc-1", "user-a")
	uploading.Status = domain.StatusUploading
	uc, _, _, _, _, queue := documentsFixture(uploading)

	if _, err := uc.Reingest(context.Background(), "doc-1", "user-a"); !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatalf("nothing should be published")
	}
}
