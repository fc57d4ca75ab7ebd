package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sagarc03/stashbox"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError writes the error response matching err. Token failures are
// collapsed into a generic message so callers can't probe which check failed.
func HandleError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &maxBytesErr):
		slog.Debug("request error", "error", err)
		WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Upload exceeds the size limit")
	case errors.Is(err, stashbox.ErrUnauthorized):
		slog.Debug("request error", "error", err)
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid credentials")
	case errors.As(err, &validationErrs):
		slog.Debug("request error", "error", err)
		WriteError(w, http.StatusBadRequest, "invalid_input", validationMessage(validationErrs))
	case errors.Is(err, stashbox.ErrInvalidInput), errors.Is(err, errInvalidBody):
		slog.Debug("request error", "error", err)
		WriteError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, stashbox.ErrNotFound):
		slog.Debug("request error", "error", err)
		WriteError(w, http.StatusNotFound, "not_found", "Object not found")
	case errors.Is(err, stashbox.ErrConflict):
		slog.Debug("request error", "error", err)
		WriteError(w, http.StatusConflict, "conflict", "Object already exists or was already uploaded")
	default:
		slog.Error("request error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func validationMessage(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "invalid request"
	}
	fe := errs[0]
	return "field " + fe.Field() + " failed " + fe.Tag() + " validation"
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
