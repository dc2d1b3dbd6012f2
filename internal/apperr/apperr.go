// Package apperr holds the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"net/http"
	"time"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindLockedOut  Kind = "locked_out"
	KindProvider   Kind = "identity_provider"
	KindStore      Kind = "store"
)

// Error is rendered to clients as {"error": Message}. Err is never exposed.
type Error struct {
	Kind    Kind
	Message string
	// Status overrides the default status of Kind when non-zero.
	Status int
	// Until is set for KindLockedOut.
	Until time.Time
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation, KindStore, KindProvider:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindLockedOut:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Invalid is a Validation error whose message is err's text.
func Invalid(err error) *Error {
	return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func LockedOut(until time.Time) *Error {
	return &Error{
		Kind:    KindLockedOut,
		Message: "Account locked due to multiple failed attempts. Please try again later.",
		Until:   until,
	}
}

func Provider(status int, message string, err error) *Error {
	return &Error{Kind: KindProvider, Message: message, Status: status, Err: err}
}

func Store(message string, err error) *Error {
	return &Error{Kind: KindStore, Message: message, Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}
