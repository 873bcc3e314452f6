package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"live-quiz-service/internal/domain"

	"go.uber.org/zap"
)

type errorPayload struct {
	Category domain.Category `json:"category"`
	Message  string          `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError reports err as {category, message} with a status derived from its category.
// Internal errors are logged and hidden from the client.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	payload := errorPayload{Category: domain.CategoryOf(err), Message: err.Error()}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		if payload.Category == domain.CategoryInternal {
			payload.Message = "internal error"
		}
	}
	writeJSON(w, status, payload)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTestNotFound), errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionConflict), errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrAnotherTestActive), errors.Is(err, domain.ErrAlreadySubmitted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidUser):
		return http.StatusUnprocessableEntity
	}
	switch domain.CategoryOf(err) {
	case domain.CategoryAuth:
		return http.StatusUnauthorized
	case domain.CategoryLifecycle, domain.CategorySubmission:
		return http.StatusUnprocessableEntity
	case domain.CategoryStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
