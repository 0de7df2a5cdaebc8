// Package errs defines the error taxonomy shared by the settlement core and its HTTP surface.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	NotFound           Kind = "not_found"
	Forbidden          Kind = "forbidden"
	InvalidTransition  Kind = "invalid_transition"
	InvalidToken       Kind = "invalid_token"
	NotEligible        Kind = "not_eligible"
	NotAssigned        Kind = "not_assigned"
	AlreadyPaid        Kind = "already_paid"
	PayeeNotConfigured Kind = "payee_not_configured"
	ProcessorError     Kind = "processor_error"
	InvalidSignature   Kind = "invalid_signature"
	ValidationError    Kind = "validation_error"
)

var (
	ErrNotFound           = &Error{Kind: NotFound}
	ErrForbidden          = &Error{Kind: Forbidden}
	ErrInvalidTransition  = &Error{Kind: InvalidTransition}
	ErrInvalidToken       = &Error{Kind: InvalidToken}
	ErrNotEligible        = &Error{Kind: NotEligible}
	ErrNotAssigned        = &Error{Kind: NotAssigned}
	ErrAlreadyPaid        = &Error{Kind: AlreadyPaid}
	ErrPayeeNotConfigured = &Error{Kind: PayeeNotConfigured}
	ErrProcessor          = &Error{Kind: ProcessorError}
	ErrInvalidSignature   = &Error{Kind: InvalidSignature}
	ErrValidation         = &Error{Kind: ValidationError}

	// ErrChannelNotConfigured is returned by notification channels lacking provider credentials.
	ErrChannelNotConfigured = errors.New("notification channel not configured")
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, errs.ErrNotFound) works for every NotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
