package stashbox

import "errors"

var (
	// ErrNotFound is returned when a resource is not found or is not visible to the caller
	ErrNotFound = errors.New("not found")
	// ErrInternal is returned when an internal error occurs
	ErrInternal = errors.New("internal error")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when authentication fails
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict is returned when a uniqueness or lifecycle rule would be violated
	ErrConflict = errors.New("conflict")
	// ErrIO is returned when the underlying blob storage fails to read or write
	ErrIO = errors.New("storage i/o failure")
)

// Token verification failures. The service wraps each of them together with
// ErrUnauthorized, so callers can match either the specific kind or the class.
var (
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
)
