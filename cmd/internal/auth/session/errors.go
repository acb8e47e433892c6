package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential is returned when the request carries no valid session cookie.
	ErrNoCredential = errors.New("no credential")

	// ErrSessionNotFound is returned when an id or token does not match any session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session exists but is past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrForbidden is returned when a user tries to revoke a session they do not own.
	ErrForbidden = errors.New("forbidden")

	// ErrInternal is returned for unexpected store or transport failures.
	// The cause is reported to the ErrorSink and never surfaced to clients.
	ErrInternal = errors.New("internal error")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// OpError is a typed operation error with a stable Op + Kind contract.
// Kind is one of the sentinel errors above; Err carries the underlying cause
// for internal failures and must never be written to a response.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e OpError) Unwrap() error { return e.Kind }

func opErr(op string, kind error) error { return OpError{Op: op, Kind: kind} }

func internalErr(op string, cause error) error {
	return OpError{Op: op, Kind: ErrInternal, Err: cause}
}
