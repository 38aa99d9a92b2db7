package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/infrastructure/resilience"
)

// pointNamespace derives Qdrant point ids; Qdrant accepts only UUID or
// unsigned integer ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pdf-chat/chunk-vectors"))

type Config struct {
	BaseURL        string
	Collection     string
	Dimension      int
	RequestTimeout time.Duration
}

type Client struct {
	baseURL    string
	collection string
	dimension  int
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu sync.Mutex
	ensured  bool
}

func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = domain.EmbeddingDimension
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		collection: cfg.Collection,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// PointID maps a chunk id onto the UUID Qdrant stores it under.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, vectors []domain.ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}
	points := make([]point, 0, len(vectors))
	for _, v := range vectors {
		if v.DocumentID == "" || v.OwnerID == "" {
			return domain.WrapError(domain.ErrVectorStore, "qdrant upsert", fmt.Errorf("vector %q is missing document_id or owner_id", v.ID))
		}
		if len(v.Embedding) != c.dimension {
			return domain.WrapError(domain.ErrVectorStore, "qdrant upsert", fmt.Errorf("vector %q has dimension %d, expected %d", v.ID, len(v.Embedding), c.dimension))
		}
		points = append(points, point{
			ID:     PointID(v.ID),
			Vector: v.Embedding,
			Payload: map[string]any{
				"chunk_id":    v.ID,
				"document_id": v.DocumentID,
				"owner_id":    v.OwnerID,
				"chunk_index": v.ChunkIndex,
				"text":        v.Text,
				"page_start":  v.PageStart,
				"page_end":    v.PageEnd,
				"degraded":    v.Degraded,
			},
		})
	}

	if err := c.ensureCollection(ctx); err != nil {
		return domain.WrapError(domain.ErrVectorStore, "qdrant upsert", err)
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	err := c.call(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
	return domain.WrapError(domain.ErrVectorStore, "qdrant upsert", err)
}

func (c *Client) Query(
	ctx context.Context,
	embedding []float32,
	topK int,
	filter domain.VectorFilter,
) ([]domain.VectorMatch, error) {
	if err := filter.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrVectorStore, "qdrant query", err)
	}
	if topK <= 0 {
		topK = 5
	}
	if err := c.ensureCollection(ctx); err != nil {
		return nil, domain.WrapError(domain.ErrVectorStore, "qdrant query", err)
	}

	reqBody := map[string]any{
		"vector":       embedding,
		"limit":        topK,
		"with_payload": true,
		"filter":       tenantFilter(filter),
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.call(ctx, "search", http.MethodPost, path, reqBody, &searchResp); err != nil {
		return nil, domain.WrapError(domain.ErrVectorStore, "qdrant query", err)
	}

	out := make([]domain.VectorMatch, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		match := domain.VectorMatch{
			ID:         getStringPayload(r.Payload, "chunk_id"),
			DocumentID: getStringPayload(r.Payload, "document_id"),
			OwnerID:    getStringPayload(r.Payload, "owner_id"),
			ChunkIndex: getIntPayload(r.Payload, "chunk_index"),
			Text:       getStringPayload(r.Payload, "text"),
			PageStart:  getIntPayload(r.Payload, "page_start"),
			PageEnd:    getIntPayload(r.Payload, "page_end"),
			Degraded:   r.Payload["degraded"] == true,
			Similarity: r.Score,
		}
		if match.DocumentID != filter.DocumentID || match.OwnerID != filter.OwnerID {
			return nil, domain.WrapError(domain.ErrVectorStore, "qdrant query", errors.New("index returned a point outside the requested tenant"))
		}
		out = append(out, match)
	}
	return out, nil
}

func (c *Client) DeleteByDocument(ctx context.Context, filter domain.VectorFilter) error {
	if err := filter.Validate(); err != nil {
		return domain.WrapError(domain.ErrVectorStore, "qdrant delete", err)
	}
	return domain.WrapError(domain.ErrVectorStore, "qdrant delete", c.deleteByFilter(ctx, tenantFilter(filter)))
}

func (c *Client) DeleteFromIndex(ctx context.Context, filter domain.VectorFilter, fromIndex int) error {
	if err := filter.Validate(); err != nil {
		return domain.WrapError(domain.ErrVectorStore, "qdrant delete stale", err)
	}
	f := tenantFilter(filter)
	f["must"] = append(f["must"].([]map[string]any), map[string]any{
		"key":   "chunk_index",
		"range": map[string]any{"gte": fromIndex},
	})
	return domain.WrapError(domain.ErrVectorStore, "qdrant delete stale", c.deleteByFilter(ctx, f))
}

func (c *Client) deleteByFilter(ctx context.Context, filter map[string]any) error {
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	return c.call(ctx, "delete", http.MethodPost, path, map[string]any{"filter": filter}, nil)
}

func tenantFilter(filter domain.VectorFilter) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "document_id", "match": map[string]any{"value": filter.DocumentID}},
			{"key": "owner_id", "match": map[string]any{"value": filter.OwnerID}},
		},
	}
}

// ensureCollection creates the collection and the payload indexes used by the
// tenant filter once per process.
func (c *Client) ensureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensured {
		return nil
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     c.dimension,
			"distance": "Cosine",
		},
	}
	err := c.call(ctx, "ensure collection", http.MethodPut, "/collections/"+c.collection, reqBody, nil)
	if err != nil && !isConflict(err) {
		return err
	}

	indexes := []struct {
		field  string
		schema string
	}{
		{field: "document_id", schema: "keyword"},
		{field: "owner_id", schema: "keyword"},
		{field: "chunk_index", schema: "integer"},
	}
	for _, idx := range indexes {
		body := map[string]any{"field_name": idx.field, "field_schema": idx.schema}
		path := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
		if err := c.call(ctx, "ensure payload index", http.MethodPut, path, body, nil); err != nil && !isConflict(err) {
			return err
		}
	}

	c.ensured = true
	return nil
}

func isConflict(err error) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
