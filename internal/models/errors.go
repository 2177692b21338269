package models

import "fmt"

// ErrorKind is the closed set of failure categories surfaced by the service
// layer. Handlers map kinds to HTTP status codes; everything else is a plain
// error and treated as a store failure.
type ErrorKind int

const (
	KindStore ErrorKind = iota
	KindNotFound
	KindPermissionDenied
	KindValidation
	KindConflict
	KindInvalidTransition
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	default:
		return "store"
	}
}

// Error carries an ErrorKind plus a user-visible message. The wrapped error,
// when present, is for logs only and never reaches the client.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error without an underlying cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError attaches an underlying cause to a kinded error.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, defaulting to KindStore for untyped errors.
func KindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindStore
}
