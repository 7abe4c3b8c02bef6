// Package interop defines the error taxonomy shared across the store,
// permission, and HTTP layers. Callers match with errors.Is so that
// wrapped detail (entity ids, field names) survives the trip up the stack.
package interop

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that a referenced entity id does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrPermissionDenied signals a failed capability check. Entity-scoped
	// checks also return this for absent ids, so callers cannot probe for
	// existence of entities they are not allowed to see.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrChanged signals an optimistic-concurrency conflict: the entity was
	// modified since the caller last read it. Retry after re-reading.
	ErrChanged = errors.New("entity changed")

	// ErrValidation signals malformed input: unknown mailer type, dangling
	// namespace reference, or an illegal namespace move.
	ErrValidation = errors.New("validation failed")
)

// NotFoundf wraps ErrNotFound with detail.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// PermissionDeniedf wraps ErrPermissionDenied with detail.
func PermissionDeniedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, fmt.Sprintf(format, args...))
}

// Validationf wraps ErrValidation with detail.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
