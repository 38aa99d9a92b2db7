package domain

import "time"

type DocumentStatus string

const (
	StatusUploading  DocumentStatus = "uploading"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

// PartiallyIndexedWarning is recorded on documents where at least one chunk
// was embedded with the degraded vector.
const PartiallyIndexedWarning = "partially indexed"

type Document struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	FileName       string         `json:"file_name"`
	FileSizeBytes  int64          `json:"file_size_bytes"`
	StoragePath    string         `json:"-"`
	Status         DocumentStatus `json:"status"`
	PageCount      *int           `json:"page_count,omitempty"`
	ChunkCount     int            `json:"chunk_count"`
	DegradedChunks int            `json:"degraded_chunks"`
	IndexWarning   string         `json:"index_warning,omitempty"`
	Error          string         `json:"error,omitempty"`
	UploadedAt     time.Time      `json:"uploaded_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (s DocumentStatus) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// AllowedPredecessors lists the statuses a document may move to next from.
// Statuses only move forward; the single way back to processing is an explicit
// re-ingestion. Re-ingestion also restarts a processing document whose run
// died: the caller must hold the ingestion lease, so no other run is live.
func AllowedPredecessors(next DocumentStatus, reingest bool) []DocumentStatus {
	switch next {
	case StatusProcessing:
		if reingest {
			return []DocumentStatus{StatusReady, StatusError, StatusProcessing}
		}
		return []DocumentStatus{StatusUploading}
	case StatusReady, StatusError:
		return []DocumentStatus{StatusProcessing}
	default:
		return nil
	}
}

func CanTransition(from, to DocumentStatus, reingest bool) bool {
	for _, s := range AllowedPredecessors(to, reingest) {
		if s == from {
			return true
		}
	}
	return false
}

// IngestionOutcome is what a successful pipeline run records on the document.
type IngestionOutcome struct {
	PageCount      int
	ChunkCount     int
	DegradedChunks int
	IndexWarning   string
}

// IngestionRequest is the message carried from upload to the worker.
type IngestionRequest struct {
	DocumentID  string    `json:"document_id"`
	OwnerID     string    `json:"owner_id"`
	Reingest    bool      `json:"reingest"`
	RequestedAt time.Time `json:"requested_at"`
}
