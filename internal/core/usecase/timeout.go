package usecase

import (
	"context"
	"time"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

// withTimeout bounds one external call. A zero timeout only inherits ctx.
func withTimeout(ctx context.Context, timeout time.Duration, operation string, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return domain.ClassifyTimeout(operation, fn(ctx))
}

// wrapKind tags err with kind unless it already carries it.
func wrapKind(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, kind) {
		return err
	}
	return domain.WrapError(kind, operation, err)
}
