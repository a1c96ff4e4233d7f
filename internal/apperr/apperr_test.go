package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("limit: %w", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("hmac: %w", ErrSignature), http.StatusUnauthorized},
		{fmt.Errorf("article abc: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: %w", ErrSync, ErrFetch), http.StatusServiceUnavailable},
		{fmt.Errorf("insert: %w", ErrStorage), http.StatusInternalServerError},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.err), "%v", tt.err)
	}
}
