// Package apperr defines the error kinds returned by the membership,
// invitation and messaging services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindExpiredState Kind = "expired"
	KindTransientIO  Kind = "transient_io"
)

// Error carries a Kind, a human-readable reason and an optional cause.
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

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Reason == ""
}

// Kind-only targets for errors.Is.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrExpiredState = &Error{Kind: KindExpiredState}
	ErrTransientIO  = &Error{Kind: KindTransientIO}
)

func Validation(reason string) error   { return &Error{Kind: KindValidation, Reason: reason} }
func NotFound(reason string) error     { return &Error{Kind: KindNotFound, Reason: reason} }
func Forbidden(reason string) error    { return &Error{Kind: KindForbidden, Reason: reason} }
func Conflict(reason string) error     { return &Error{Kind: KindConflict, Reason: reason} }
func ExpiredState(reason string) error { return &Error{Kind: KindExpiredState, Reason: reason} }

// Transient wraps a storage or network failure. An err that already carries a
// Kind is returned unchanged.
func Transient(reason string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindTransientIO, Reason: reason, Err: err}
}

// KindOf returns the Kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// ReasonOf returns the reason string of err, falling back to err.Error().
func ReasonOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Reason != "" {
		return ae.Reason
	}
	return err.Error()
}
