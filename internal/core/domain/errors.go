package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrLeaseHeld         = errors.New("ingestion lease held")

	// Pipeline failure kinds. Callers branch on these to decide between
	// failing a run and continuing in degraded mode.
	ErrExtraction        = errors.New("text extraction failed")
	ErrEmbeddingProvider = errors.New("embedding provider error")
	ErrVectorStore       = errors.New("vector store error")
	ErrConfiguration     = errors.New("configuration error")
	ErrTimeout           = errors.New("operation timed out")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ClassifyTimeout tags deadline expiry with ErrTimeout so it is reported as
// its own failure kind.
func ClassifyTimeout(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return WrapError(ErrTimeout, operation, err)
	}
	return err
}
