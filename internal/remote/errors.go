package remote

import (
	"errors"
	"fmt"
)

// Error kinds returned by Client implementations.
//
// Every error a Client returns wraps exactly one of these, so callers can
// branch with errors.Is:
//
//	if errors.Is(err, remote.ErrUnreachable) {
//	    // report and wait for the next user-triggered sync
//	}
var (
	// ErrUnreachable is returned when the service could not be contacted:
	// DNS, connection, TLS failures and timeouts.
	ErrUnreachable = errors.New("remote unreachable")

	// ErrRejected is returned when the service answered but refused the
	// request (validation error, rate limit, server error).
	ErrRejected = errors.New("remote rejected request")

	// ErrAuth is returned when the credentials were refused. It also
	// satisfies IsRejected.
	ErrAuth = errors.New("remote authentication failed")

	// ErrNotFound is returned when the remote id does not exist upstream.
	ErrNotFound = errors.New("remote record not found")

	// ErrNotSupported is returned when a backend has no equivalent for an
	// operation, such as sections on a service without sections.
	ErrNotSupported = errors.New("operation not supported by this backend")
)

// Error carries the operation and HTTP status alongside the error kind.
type Error struct {
	Op     string // e.g. "create task"
	Kind   error  // one of the sentinel errors above
	Status int    // HTTP status when known, otherwise 0
	Err    error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unreachable wraps a transport failure.
func Unreachable(op string, err error) error {
	return &Error{Op: op, Kind: ErrUnreachable, Err: err}
}

// Rejected wraps a refusal from the service.
func Rejected(op string, status int, err error) error {
	return &Error{Op: op, Kind: ErrRejected, Status: status, Err: err}
}

// FromStatus maps an HTTP status code onto an error kind.
func FromStatus(op string, status int, err error) error {
	switch {
	case status == 401 || status == 403:
		return &Error{Op: op, Kind: ErrAuth, Status: status, Err: err}
	case status == 404 || status == 410:
		return &Error{Op: op, Kind: ErrNotFound, Status: status, Err: err}
	case status == 408 || status == 502 || status == 503 || status == 504:
		return &Error{Op: op, Kind: ErrUnreachable, Status: status, Err: err}
	default:
		return &Error{Op: op, Kind: ErrRejected, Status: status, Err: err}
	}
}

// IsUnreachable reports whether err is a transport failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsRejected reports whether the service refused the request.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrAuth) || errors.Is(err, ErrNotSupported)
}

// IsNotFound reports whether the remote record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the error is likely to succeed on the next
// sync pass without user action.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	var re *Error
	if errors.As(err, &re) && (re.Status == 429 || re.Status >= 500) {
		return true
	}
	return false
}

// IsUserActionRequired returns true if the error needs the user to fix
// credentials or configuration.
func IsUserActionRequired(err error) bool {
	return errors.Is(err, ErrAuth)
}
