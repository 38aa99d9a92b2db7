package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kirillkom/pdf-chat/internal/infrastructure/resilience"
)

func (c *Client) call(ctx context.Context, operation, method, path string, payload any, out any) error {
	do := func(callCtx context.Context) error {
		return c.doJSON(callCtx, operation, method, path, payload, out)
	}
	var err error
	if c.executor == nil {
		err = do(ctx)
	} else {
		err = c.executor.Execute(ctx, "qdrant."+operation, do, classify)
	}
	return resilience.WrapTemporaryIfNeeded("qdrant "+operation, err, classify)
}

// classify keeps 409 from counting against the breaker; collection and index
// creation answer 409 when the object already exists.
func classify(err error) resilience.ErrorClassification {
	if isConflict(err) {
		return resilience.ErrorClassification{}
	}
	return resilience.ClassifyHTTPError(err)
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
