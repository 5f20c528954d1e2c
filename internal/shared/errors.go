package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the domain error taxonomy. Services wrap these with
// fmt.Errorf("...: %w", ...) and the HTTP layer maps them to status codes.
var (
	// ErrUnauthenticated indicates no valid principal in context.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the principal lacks the required permission or
	// tenant membership.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPrecondition indicates a lifecycle or guard violation independent of
	// permissions, e.g. purging an entity that is not trashed.
	ErrPrecondition = errors.New("precondition failed")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Forbiddenf wraps ErrForbidden with a formatted reason.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrForbidden)...)
}

// Preconditionf wraps ErrPrecondition with a formatted reason.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPrecondition)...)
}

// Conflictf wraps ErrConflict with a formatted reason.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// NotFoundf wraps ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}
