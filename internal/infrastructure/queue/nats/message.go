package nats

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

func encodeRequest(req domain.IngestionRequest) ([]byte, error) {
	if req.DocumentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode ingestion request", errors.New("document id is empty"))
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal ingestion request: %w", err)
	}
	return payload, nil
}

func decodeRequest(data []byte) (domain.IngestionRequest, error) {
	var req domain.IngestionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.IngestionRequest{}, fmt.Errorf("unmarshal ingestion request: %w", err)
	}
	if req.DocumentID == "" {
		return domain.IngestionRequest{}, errors.New("ingestion request without document_id")
	}
	return req, nil
}
