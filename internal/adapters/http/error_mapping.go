package httpadapter

import (
	"net/http"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

// mapErrorToHTTPStatus checks the most specific kinds first: a timed out
// vector query carries both ErrTimeout and ErrVectorStore.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidTransition), domain.IsKind(err, domain.ErrLeaseHeld):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrEmbeddingProvider), domain.IsKind(err, domain.ErrVectorStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
