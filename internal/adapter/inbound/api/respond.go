// Package api provides the HTTP transport for the chat service: handlers,
// middleware chain, health and metrics endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/loomchat/loomchat/internal/domain/chat"
	"github.com/loomchat/loomchat/internal/domain/session"
	"github.com/loomchat/loomchat/internal/domain/user"
	"github.com/loomchat/loomchat/internal/port/outbound"
	"github.com/loomchat/loomchat/internal/service"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the JSON error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// respondErr maps service errors to HTTP statuses. Unknown errors become an
// opaque 500; the logged error carries the detail.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := errStatus(err)
	if status == http.StatusInternalServerError {
		LoggerFromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrRefreshMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrModelNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, user.ErrUserNotFound),
		errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, chat.ErrMessageNotFound),
		errors.Is(err, chat.ErrAttachmentNotFound),
		errors.Is(err, outbound.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, user.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrUnsupportedMIME):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, session.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, outbound.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a request body into v, rejecting unknown garbage early.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}
