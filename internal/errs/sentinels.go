// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrAuthenticationFailed indicates a missing, invalid or stale signed assertion,
	// or a signing key that belongs to no device.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAuthorizationFailed indicates an authenticated caller without rights over the target entity.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates an operation that violates a lifecycle invariant.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict indicates a lost race that callers absorb (e.g. a key claimed by someone else).
	ErrConflict = errors.New("conflict")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., a duplicate one-time key).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation")

	// ErrRateLimited indicates temporary lock of secret-gated lookups.
	ErrRateLimited = errors.New("rate limited")
)

// Lifecycle violations, all matching ErrInvalidState.
var (
	ErrCannotRemoveLastDevice = fmt.Errorf("%w: can't remove the last device, delete the account instead", ErrInvalidState)
	ErrCannotRemoveCreator    = fmt.Errorf("%w: creators can't remove themselves from a repository", ErrInvalidState)
	ErrCannotAcceptInvitation = fmt.Errorf("%w: can't accept this invitation", ErrInvalidState)
)

// Validationf builds an ErrValidation-wrapped error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Kind returns the stable kind name of err, or "Internal" for unexpected failures.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthenticationFailed):
		return "AuthenticationFailed"
	case errors.Is(err, ErrAuthorizationFailed):
		return "AuthorizationFailed"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyExists):
		return "ConflictOrTaken"
	case errors.Is(err, ErrValidation):
		return "Validation"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	default:
		return "Internal"
	}
}
