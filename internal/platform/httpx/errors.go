// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-trade/internal/platform/db"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
)

// RespondError maps shared and storage errors to HTTP responses using RFC7807.
// Domain handlers translate their own errors first and fall back to this.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, db.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Concurrency Conflict", "the request conflicted with another change; retry it")
	case errors.Is(err, db.ErrStorageTimeout):
		w.Header().Set("Retry-After", "2")
		Problem(w, http.StatusServiceUnavailable, "Storage Timeout", "the request timed out; nothing was changed")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
