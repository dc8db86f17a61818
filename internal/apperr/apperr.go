// Package apperr defines the error kinds surfaced across switchgear's
// HTTP surfaces, per spec.md §7, and the plumbing to map them to HTTP
// status codes and LNURL-style error bodies.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds in spec.md §7's table.
type Kind string

const (
	KindNotFound              Kind = "NotFound"
	KindInvalidAmount         Kind = "InvalidAmount"
	KindConflict              Kind = "Conflict"
	KindReferentialIntegrity  Kind = "ReferentialIntegrity"
	KindUnauthorized          Kind = "Unauthorized"
	KindNoBackendAvailable    Kind = "NoBackendAvailable"
	KindInternal              Kind = "Internal"
)

// Error wraps an underlying cause with a Kind used to pick the HTTP
// status and response shape at the surface boundary.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// NotFound, InvalidAmount, etc. are convenience constructors mirroring
// spec.md §7's table rows.
func NotFound(reason string) *Error             { return New(KindNotFound, reason) }
func InvalidAmount(reason string) *Error        { return New(KindInvalidAmount, reason) }
func Conflict(reason string) *Error             { return New(KindConflict, reason) }
func ReferentialIntegrity(reason string) *Error { return New(KindReferentialIntegrity, reason) }
func Unauthorized(reason string) *Error         { return New(KindUnauthorized, reason) }
func NoBackendAvailable(reason string) *Error   { return New(KindNoBackendAvailable, reason) }
func Internal(reason string, err error) *Error  { return Wrap(KindInternal, reason, err) }

// As extracts an *Error from err, returning a generic Internal wrapper
// if err is not already one of ours — every path out of the domain
// layer should surface a Kind, even an unexpected one.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("unexpected error", err)
}
