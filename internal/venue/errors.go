package venue

import (
	"errors"
	"fmt"
)

// ValidationError is returned by PlaceOrder when a request is refused.
// No order exists for a refused request.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v (field: %s)", e.Err, e.Field)
	}
	return fmt.Sprintf("%v: %s (field: %s)", e.Err, e.Reason, e.Field)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}
