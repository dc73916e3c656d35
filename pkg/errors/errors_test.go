package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("loading: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
		{"malformed", ErrMalformedRecord, http.StatusBadRequest},
		{"locked", ErrIndexLocked, http.StatusConflict},
		{"disabled", ErrIndexingDisabled, http.StatusForbidden},
		{"app error wins", Newf(ErrInternal, http.StatusTeapot, "x=%d", 1), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestInvalidfUnwraps(t *testing.T) {
	err := Invalidf("top_k must be non-negative, got %d", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: top_k must be non-negative, got -1", err.Error())
}
