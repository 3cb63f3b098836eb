package preferences

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input. Callers may resubmit corrected input.
	ErrValidation = errors.New("preferences: validation failed")
	// ErrNotFound marks a reference to an unknown category or preference.
	ErrNotFound = errors.New("preferences: not found")
	// ErrConflict marks a structural rule violation.
	ErrConflict = errors.New("preferences: conflict")

	// ErrCategoryHasPreferences is returned when deleting a category that still owns preferences.
	ErrCategoryHasPreferences = fmt.Errorf("%w: category has associated preferences", ErrConflict)

	errMissingDatabase = errors.New("database handle is required")
)

// ServiceError carries a stable dotted code alongside the underlying cause.
type ServiceError struct {
	code   string
	reason string
	err    error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the "<operation>.<reason>" identifier.
func (e *ServiceError) Code() string {
	return e.code
}

// Reason returns the trailing reason segment of the code.
func (e *ServiceError) Reason() string {
	return e.reason
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, reason: reason, err: cause}
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Message strips the sentinel prefix so the text can be shown to a user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var cause error = err
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) && serviceErr.err != nil {
		cause = serviceErr.err
	}
	text := cause.Error()
	for _, sentinel := range []error{ErrValidation, ErrNotFound, ErrConflict} {
		if trimmed, ok := strings.CutPrefix(text, sentinel.Error()+": "); ok {
			return trimmed
		}
	}
	return text
}
