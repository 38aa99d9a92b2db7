package localfs

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestSaveOpenDelete(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	n, err := storage.Save(ctx, "doc-1_report.pdf", strings.NewReader("%PDF-1.7 body"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if n != int64(len("%PDF-1.7 body")) {
		t.Fatalf("unexpected size %d", n)
	}

	rc, err := storage.Open(ctx, "doc-1_report.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	raw, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(raw) != "%PDF-1.7 body" {
		t.Fatalf("unexpected content %q", raw)
	}

	if err := storage.Delete(ctx, "doc-1_report.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := storage.Delete(ctx, "doc-1_report.pdf"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, err := storage.Open(ctx, "doc-1_report.pdf"); err == nil {
		t.Fatalf("expected open error after delete")
	}
}

func TestRejectsPathTraversal(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"../escape.pdf", "nested/file.pdf", "", ".hidden"} {
		if _, err := storage.Save(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}
