package domain

import "fmt"

// EmbeddingDimension is the vector size shared by the embedder and every
// vector index backend.
const EmbeddingDimension = 768

// PageBreak separates pages in extracted text.
const PageBreak = "\f"

type ExtractionMethod string

const (
	ExtractionStructured ExtractionMethod = "structured"
	ExtractionOCR        ExtractionMethod = "ocr"
)

type ExtractedText struct {
	Text      string
	PageCount int
	Method    ExtractionMethod
}

type Chunk struct {
	Index     int
	Text      string
	PageStart int
	PageEnd   int
}

type EmbeddedChunk struct {
	Chunk
	Embedding []float32
	Degraded  bool
}

// ChunkVector is the unit persisted in the vector index.
type ChunkVector struct {
	ID         string
	DocumentID string
	OwnerID    string
	ChunkIndex int
	Text       string
	PageStart  int
	PageEnd    int
	Degraded   bool
	Embedding  []float32
}

// VectorFilter is the tenant isolation key. Both fields are mandatory.
type VectorFilter struct {
	DocumentID string
	OwnerID    string
}

func (f VectorFilter) Validate() error {
	if f.DocumentID == "" || f.OwnerID == "" {
		return fmt.Errorf("vector filter requires document_id and owner_id")
	}
	return nil
}

type VectorMatch struct {
	ID         string
	DocumentID string
	OwnerID    string
	ChunkIndex int
	Text       string
	PageStart  int
	PageEnd    int
	Degraded   bool
	Similarity float64
}

// ChunkVectorID derives the stable id of a chunk so re-ingestion overwrites.
func ChunkVectorID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

// DegradedVector is substituted for a chunk whose embedding call failed.
func DegradedVector(dim int) []float32 {
	return make([]float32, dim)
}
