package handler

// RESPONSE HELPERS:
// Every handler sends JSON through these two functions, so every response —
// success or error — has a consistent shape the frontend can rely on:
//
//	{"error": "conflict", "message": "user already exists: admin"}
//
// writeError is also the ONLY place domain errors meet HTTP status codes.
// The service and repository layers speak apperror sentinels; what a
// "backend unavailable" means in HTTP terms (503) is decided here and
// nowhere else.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rahat/vulnarena/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

// writeJSON sends a JSON response with the given status code. Headers and
// status must go out before the body — once Encode writes, they are sealed.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already gone; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status code and sends it.
//
// ORDERING SUBTLETY:
// A create that failed in both backends because each rejected a duplicate
// carries BOTH ErrCreateFailed and ErrConflict in its chain (the aggregate
// joins the per-backend causes). The conflict case must be checked first so
// the caller sees a 409 they can act on, not a generic 503.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		case errors.Is(err, apperror.ErrCreateFailed), errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable
			errorType = "backend_unavailable"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Unknown error — generic 500. The raw message might leak queries or
	// file paths, so it never reaches the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
