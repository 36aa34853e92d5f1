package listsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
)

// Sentinel errors. Unknown fields and rejected limits match the httpx
// taxonomy so API handlers can answer them directly.
var (
	ErrUnknownField = fmt.Errorf("listsync: unknown field: %w", httpx.ErrNotFound)
	ErrDisposed     = errors.New("listsync: engine disposed")
	ErrInvalidLimit = fmt.Errorf("listsync: limit not allowed: %w", httpx.ErrValidation)
)

// ValidationError reports required filters that are still empty. It is
// raised before any request is issued.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "required filter missing: " + strings.Join(e.Fields, ", ")
}

// Unwrap ties the error to the shared validation sentinel.
func (e *ValidationError) Unwrap() error {
	return httpx.ErrValidation
}
