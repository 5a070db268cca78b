package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
	"github.com/mbarradev-debug/divisapp-sub000/pkg/webpush"
)

// errorMapping ties a sentinel to its HTTP status and public code.
type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ErrUnsupportedMediaType, http.StatusUnsupportedMediaType, "unsupported_media_type"},
	{ErrBodyTooLarge, http.StatusRequestEntityTooLarge, "body_too_large"},
	{ErrInvalidJSON, http.StatusBadRequest, "invalid_json"},
	{ErrMissingParameter, http.StatusBadRequest, "missing_parameter"},
	{webpush.ErrInvalidEvent, http.StatusUnprocessableEntity, "invalid_event"},
	{webpush.ErrInvalidSubscription, http.StatusUnprocessableEntity, "invalid_subscription"},
	{webpush.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "payload_too_large"},
	{webpush.ErrEventExpired, http.StatusConflict, "event_expired"},
	{webpush.ErrSubscriptionNotFound, http.StatusNotFound, "not_found"},
	{webpush.ErrAuthentication, http.StatusInternalServerError, "authentication_failed"},
}

// errorDetail maps err to a status and a detail safe to expose. Unmapped
// errors become a generic 500.
func errorDetail(err error) (int, *ErrorDetail) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := err.Error()
			if m.status >= http.StatusInternalServerError {
				msg = http.StatusText(m.status)
			}
			return m.status, &ErrorDetail{Code: m.code, Message: msg}
		}
	}
	return http.StatusInternalServerError, &ErrorDetail{
		Code:    "internal_error",
		Message: http.StatusText(http.StatusInternalServerError),
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := errorDetail(err)
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, "request failed",
		slog.String("path", r.URL.Path),
		logger.StatusCode(status),
		logger.Error(err),
	)
	writeJSON(w, status, Response{Error: detail})
}
