package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/pdf-chat/internal/infrastructure/resilience"
)

// maxResponseBytes bounds what is decoded from one provider response.
const maxResponseBytes = 16 << 20

var errMalformedResponse = errors.New("malformed response body")

// call posts payload to path through the resilience executor and decodes the
// JSON answer into out. Exhausted retryable failures come back as ErrTemporary.
func (c *Client) call(ctx context.Context, path string, payload, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	op := "ollama." + operation
	attempt := func(callCtx context.Context) error {
		return c.post(callCtx, path, body, out, operation)
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, op, attempt, resilience.ClassifyHTTPError)
	} else {
		err = attempt(ctx)
	}
	return resilience.WrapTemporaryIfNeeded(op, err, resilience.ClassifyHTTPError)
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError("ollama", operation, resp)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w: %v", operation, errMalformedResponse, err)
	}
	return nil
}
