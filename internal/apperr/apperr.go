// Package apperr defines the error taxonomy shared by the sync pipeline and the API.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrFetch means the feed endpoint was unreachable or returned malformed syntax.
	ErrFetch = errors.New("feed fetch failed")
	// ErrExtraction means a single feed entry could not be normalized.
	ErrExtraction = errors.New("entry extraction failed")
	// ErrSync means a whole sync pass failed and nothing was published.
	ErrSync = errors.New("sync failed")
	// ErrCache is treated as a miss by every caller.
	ErrCache      = errors.New("cache unavailable")
	ErrStorage    = errors.New("storage failure")
	ErrValidation = errors.New("invalid request")
	ErrSignature  = errors.New("invalid signature")
	ErrNotFound   = errors.New("not found")
)

// Status maps an error onto the HTTP status code the API reports for it.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSync), errors.Is(err, ErrFetch):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
