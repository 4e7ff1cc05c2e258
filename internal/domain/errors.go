package domain

import (
	"errors"
	"fmt"
)

// Request-level validation failures. These are caller mistakes and always
// reach the caller wrapped in a *ValidationError.
var (
	ErrSiteNotFound     = errors.New("site not found")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrOutOfBounds      = errors.New("coordinates out of bounds")
	ErrInvalidGeometry  = errors.New("invalid geometry")
	ErrMissingField     = errors.New("missing required field")
)

// ValidationError rejects a request before any source is queried.
type ValidationError struct {
	Field  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error, format string, args ...any) error {
	return &ValidationError{Field: field, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// SiteNotFound rejects a lookup for an unknown site id.
func SiteNotFound(id string) error {
	return invalid("site_id", ErrSiteNotFound, "%q", id)
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
