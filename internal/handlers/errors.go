package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/designdesk/api/internal/platform/auth"
	"github.com/designdesk/api/internal/platform/httpx"
	"github.com/designdesk/api/internal/repositories"
	"github.com/designdesk/api/internal/services"
)

func isRepositoryUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// requireIdentity pulls the authenticated identity from the context or writes
// a 401 response.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// writeOrderError translates order service errors to HTTP responses. Foreign
// orders read as not found so clients cannot probe for other users' ids.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderDuplicateReference):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_payment_reference", "payment reference already used by another order", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrLiveFeedInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", "order cannot change status from its current state", http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request cancelled or timed out", http.StatusGatewayTimeout))
	case isRepositoryUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("datastore_unavailable", "datastore temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected server error", http.StatusInternalServerError))
	}
}

// writeChatError translates chat and live feed errors to HTTP responses.
func writeChatError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrChatInvalidInput), errors.Is(err, services.ErrLiveFeedInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrChatForbidden), errors.Is(err, services.ErrLiveFeedForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("conversation_forbidden", "conversation access denied", http.StatusForbidden))
	case errors.Is(err, services.ErrChatNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("conversation_not_found", "conversation not found", http.StatusNotFound))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request cancelled or timed out", http.StatusGatewayTimeout))
	case isRepositoryUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("datastore_unavailable", "datastore temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected server error", http.StatusInternalServerError))
	}
}
