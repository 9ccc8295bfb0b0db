package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition = errors.New("illegal transition")
	ErrMissingRecipient  = errors.New("missing recipient")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
)

// Code is the machine-readable error code surfaced to API clients.
type Code string

const (
	CodeIllegalTransition Code = "ILLEGAL_TRANSITION"
	CodeMissingRecipient  Code = "MISSING_RECIPIENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeValidation        Code = "VALIDATION_ERROR"
)

// ActionError describes why an action was rejected. It unwraps to one of the
// package sentinels so callers can branch with errors.Is.
type ActionError struct {
	Code    Code
	Kind    Kind
	State   State
	Action  Action
	Message string
	err     error
}

func (e *ActionError) Error() string {
	if e.Action == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s (state %s): %s", e.Kind, e.Action, e.State, e.Message)
}

func (e *ActionError) Unwrap() error {
	return e.err
}

func newActionError(sentinel error, doc Document, action Action, format string, args ...any) *ActionError {
	code := CodeValidation
	switch sentinel {
	case ErrIllegalTransition:
		code = CodeIllegalTransition
	case ErrMissingRecipient:
		code = CodeMissingRecipient
	case ErrNotFound:
		code = CodeNotFound
	}
	return &ActionError{
		Code:    code,
		Kind:    doc.Kind,
		State:   doc.State,
		Action:  action,
		Message: fmt.Sprintf(format, args...),
		err:     sentinel,
	}
}
