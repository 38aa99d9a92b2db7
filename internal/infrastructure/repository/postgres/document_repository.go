package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

const documentColumns = `id, owner_id, file_name, file_size_bytes, storage_path, status, page_count, chunk_count,
	degraded_chunks, index_warning, error_message, uploaded_at, last_accessed_at, updated_at`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		doc.ID, doc.OwnerID, doc.FileName, doc.FileSizeBytes, doc.StoragePath, string(doc.Status),
		nullableInt(doc.PageCount), doc.ChunkCount, doc.DegradedChunks, doc.IndexWarning, doc.Error,
		doc.UploadedAt, doc.LastAccessedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocumentRow(row, id)
}

// GetForOwner reports another owner's document as not found.
func (r *DocumentRepository) GetForOwner(ctx context.Context, id, ownerID string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return scanDocumentRow(row, id)
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1
ORDER BY uploaded_at DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// UpdateStatus is a compare-and-set on the current status, so concurrent or
// stale writers cannot move a document backwards.
func (r *DocumentRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.DocumentStatus,
	reingest bool,
	errMessage string,
) error {
	from := domain.AllowedPredecessors(status, reingest)
	if len(from) == 0 {
		return domain.WrapError(domain.ErrInvalidTransition, "update document status", fmt.Errorf("no transition into %s", status))
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1 AND status = ANY(string_to_array($5, ','))
`, id, string(status), errMessage, r.now(), joinStatuses(from))
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return r.checkTransition(ctx, res, id, status)
}

func (r *DocumentRepository) CompleteIngestion(ctx context.Context, id string, outcome domain.IngestionOutcome) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, page_count = $3, chunk_count = $4, degraded_chunks = $5, index_warning = $6,
	error_message = '', updated_at = $7
WHERE id = $1 AND status = $8
`, id, string(domain.StatusReady), outcome.PageCount, outcome.ChunkCount, outcome.DegradedChunks,
		outcome.IndexWarning, r.now(), string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("complete ingestion: %w", err)
	}
	return r.checkTransition(ctx, res, id, domain.StatusReady)
}

func (r *DocumentRepository) TouchAccessed(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE documents SET last_accessed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch document: %w", err)
	}
	return requireRowsAffected(res, "touch document", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRowsAffected(res, "delete document", id)
}

func (r *DocumentRepository) checkTransition(ctx context.Context, res sql.Result, id string, to domain.DocumentStatus) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document status", fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return fmt.Errorf("read document status: %w", err)
	}
	return domain.WrapError(
		domain.ErrInvalidTransition,
		"update document status",
		fmt.Errorf("id=%s from %s to %s", id, current, to),
	)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocumentRow(row *sql.Row, id string) (*domain.Document, error) {
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return doc, nil
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var pageCount sql.NullInt64

	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.FileName, &doc.FileSizeBytes, &doc.StoragePath, &status, &pageCount,
		&doc.ChunkCount, &doc.DegradedChunks, &doc.IndexWarning, &doc.Error,
		&doc.UploadedAt, &doc.LastAccessedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	if pageCount.Valid {
		n := int(pageCount.Int64)
		doc.PageCount = &n
	}
	return &doc, nil
}

func requireRowsAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func joinStatuses(statuses []domain.DocumentStatus) string {
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ",")
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
