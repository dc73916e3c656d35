// Package errors defines the sentinel errors shared by the indexer, the
// semantic engine and the query path, plus an AppError carrying an HTTP
// status for the request layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEngineUnavailable = errors.New("semantic engine unavailable")
	ErrIndexLocked       = errors.New("index is locked by another writer")
	ErrIndexingDisabled  = errors.New("indexing is disabled")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Invalidf is shorthand for a caller-misuse error. It carries a 400 status so
// it surfaces unchanged through the HTTP layer.
func Invalidf(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, http.StatusBadRequest, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexLocked):
		return http.StatusConflict
	case errors.Is(err, ErrIndexingDisabled):
		return http.StatusForbidden
	case errors.Is(err, ErrEngineUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
