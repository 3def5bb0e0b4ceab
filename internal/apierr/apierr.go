// Package apierr defines the error kinds shared by the directory's RPC
// surface and the peer server's REST surface, per the transport mapping
// in the specification's error handling section.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven error categories the system distinguishes at
// its transport boundaries. Internal code never leaks raw error types
// across those boundaries; everything is translated through a Kind.
type Kind string

const (
	KindAuth        Kind = "AUTH"
	KindConflict    Kind = "CONFLICT"
	KindRateLimited Kind = "RATE_LIMITED"
	KindBadRequest  Kind = "BAD_REQUEST"
	KindNotFound    Kind = "NOT_FOUND"
	KindUnavailable Kind = "UNAVAILABLE"
	KindInternal    Kind = "INTERNAL"
)

// Error pairs a Kind with a human-readable message and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts an *Error from any error, or reports ok=false.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
