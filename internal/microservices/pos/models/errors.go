package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation_error")
	ErrInvalidState           = errors.New("invalid_state")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrTableUnavailable       = errors.New("table_unavailable")
	ErrConcurrentModification = errors.New("concurrent_modification")
	ErrAmountMismatch         = errors.New("amount_mismatch")
	ErrNoActiveShift          = errors.New("no_active_shift")
	ErrShiftAlreadyOpen       = errors.New("shift_already_open")
	ErrNotFound               = errors.New("not_found")
)

// Error is a business-rule rejection. State carries the authoritative
// entity at the time of the rejection so callers can resynchronize.
type Error struct {
	Kind    error
	Message string
	State   any
}

func (e *Error) Error() string { return e.Message }

// Unwrap lets errors.Is match the kind; a transition error is also an
// invalid-state error.
func (e *Error) Unwrap() []error {
	if e.Kind == ErrInvalidTransition {
		return []error{ErrInvalidTransition, ErrInvalidState}
	}
	return []error{e.Kind}
}

// Code is the machine-readable kind, e.g. "invalid_transition".
func (e *Error) Code() string { return e.Kind.Error() }

func NewError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return NewError(ErrValidation, format, args...)
}

func StateErrorf(format string, args ...any) *Error {
	return NewError(ErrInvalidState, format, args...)
}

func TransitionErrorf(format string, args ...any) *Error {
	return NewError(ErrInvalidTransition, format, args...)
}

// WithState attaches the current entity to a business error. Other errors
// pass through untouched.
func WithState(err error, state any) error {
	var e *Error
	if errors.As(err, &e) && e.State == nil {
		e.State = state
	}
	return err
}
