// Package apperr defines the error kinds returned by appointment operations.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthorization   Kind = "authorization"
	KindConflict        Kind = "conflict"
	KindExternalService Kind = "external_service"
	KindNotFound        Kind = "not_found"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrAuthorization   = &Error{Kind: KindAuthorization}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrNotFound        = &Error{Kind: KindNotFound}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Remaining wait for time-window rejections.
	HoursRemaining   int
	MinutesRemaining int

	// PIN checks.
	AttemptsLeft *int
	Locked       bool
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func External(err error, format string, args ...any) *Error {
	return &Error{Kind: KindExternalService, Message: fmt.Sprintf(format, args...), Err: err}
}

// WindowHours is a validation error for a closed time window, carrying the
// hours left before the session starts.
func WindowHours(hours int, format string, args ...any) *Error {
	e := Validation(format, args...)
	e.HoursRemaining = hours
	return e
}

// WindowMinutes is a validation error for a time window that is not open
// yet, carrying the minutes left until it opens.
func WindowMinutes(minutes int, format string, args ...any) *Error {
	e := Validation(format, args...)
	e.MinutesRemaining = minutes
	return e
}

// PinRejected is returned on a wrong PIN or a locked PIN.
func PinRejected(attemptsLeft int, locked bool, message string) *Error {
	left := attemptsLeft
	return &Error{Kind: KindValidation, Message: message, AttemptsLeft: &left, Locked: locked}
}

// KindOf returns the kind of the first *Error in the chain, or "" when none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As returns the first *Error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
