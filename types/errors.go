package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported by data providers and the cache.
type ErrorKind string

// Error kinds.
const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindTransport  ErrorKind = "transport"
	KindTimeout    ErrorKind = "timeout"
	KindConflict   ErrorKind = "conflict"
)

// Error is the error type surfaced to callers. Message is meant for direct
// display.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	// Errors holds per-field validation messages.
	Errors map[string]string
	Err    error
}

// Sentinels matched by kind through errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrTransport  = &Error{Kind: KindTransport}
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrConflict   = &Error{Kind: KindConflict}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind whose message is empty, so the
// package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Message == "" && t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError returns a validation error.
func NewValidationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// NewNotFoundError returns a not-found error.
func NewNotFoundError(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// NewTransportError wraps err as a transport failure.
func NewTransportError(err error, format string, args ...any) *Error {
	e := newError(KindTransport, format, args...)
	e.Err = err
	return e
}

// NewTimeoutError wraps err as a timeout.
func NewTimeoutError(err error, format string, args ...any) *Error {
	e := newError(KindTimeout, format, args...)
	e.Err = err
	return e
}

// NewConflictError returns a conflict error.
func NewConflictError(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// KindOf classifies err. Deadline errors are timeouts; anything that does not
// carry a kind is treated as a transport failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}

// AsError converts err into an *Error, preserving an existing one.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	kind := KindOf(err)
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// Retryable reports whether a failed request may succeed when repeated.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindTransport, KindTimeout:
		return true
	}
	return false
}
