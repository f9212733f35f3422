package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/punchcardhq/punchcard/internal/stamp"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorJSON writes the boundary error shape: a stable machine code plus a
// human-readable message, never internal storage detail.
func errorJSON(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// engineError maps the engine's error taxonomy onto HTTP statuses and
// stable codes.
func engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stamp.ErrNotFound):
		errorJSON(w, http.StatusNotFound, "not_found", "account not found")
	case errors.Is(err, stamp.ErrForbidden):
		errorJSON(w, http.StatusForbidden, "forbidden", "staff does not have access to this account's merchant")
	case errors.Is(err, stamp.ErrInvalidArgument):
		errorJSON(w, http.StatusUnprocessableEntity, "invalid_argument", err.Error())
	default:
		errorJSON(w, http.StatusInternalServerError, "storage_error", "operation failed and was rolled back; safe to retry with the same idempotency key")
	}
}
