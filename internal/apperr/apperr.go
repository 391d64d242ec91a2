// Package apperr provides a message-template error type used for the
// package-level error values across lifetrack
package apperr

import (
	"errors"
	"fmt"
)

// Error is an application error. Package-level values act as templates:
// Fmt and Wrap derive new errors that still match the template with
// errors.Is.
type Error struct {
	Message string
	Cause   error
	tmpl    *Error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}

	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the template e was derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.root() == t.root()
}

// Fmt formats the message template with the provided arguments.
func (e *Error) Fmt(args ...any) *Error {
	return &Error{
		Message: fmt.Sprintf(e.Message, args...),
		Cause:   e.Cause,
		tmpl:    e.root(),
	}
}

// Wrap attaches a cause to the error.
func (e *Error) Wrap(err error) *Error {
	return &Error{
		Message: e.Message,
		Cause:   err,
		tmpl:    e.root(),
	}
}

func (e *Error) root() *Error {
	if e.tmpl != nil {
		return e.tmpl
	}

	return e
}

// Is is a convenience wrapper around errors.Is.
func Is(err error, target *Error) bool {
	return errors.Is(err, target)
}
