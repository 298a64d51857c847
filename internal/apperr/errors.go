package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequest  = errors.New("bad request")
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrBreakerOpen = errors.New("circuit breaker open")
	ErrExternal    = errors.New("external dependency failure")
)

// NotFound wraps ErrNotFound with the missing entity's kind and id.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// Validation wraps ErrBadRequest with a caller-facing reason. Validation
// errors are rejected before any mutation.
func Validation(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrBadRequest)
}

// External wraps a gateway or dependency failure so callers can distinguish
// "this call failed" from local errors.
func External(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrExternal)
}

func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool  { return errors.Is(err, ErrBadRequest) }
func IsBreakerOpen(err error) bool { return errors.Is(err, ErrBreakerOpen) }
