package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEmail is returned when registering an email that is
	// already taken after normalization.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidSession is returned when a session or temporary session is
	// missing, expired, or already consumed.
	ErrInvalidSession = errors.New("invalid session")
	// ErrInvalidCSRF is returned when a request's CSRF token does not match
	// the one bound to its session.
	ErrInvalidCSRF = errors.New("invalid csrf token")
	// ErrNotFound is returned when a user or owned resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDatabase wraps every storage failure. Errors carrying it map to a
	// server error rather than a client one.
	ErrDatabase = errors.New("database error")
)

// dbError marks err as a persistence failure for op.
func dbError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDatabase, err)
}
