package models

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateParticipant = errors.New("user already participates in match")
	ErrCapacityExceeded     = errors.New("match is at participant capacity")
	ErrNotParticipant       = errors.New("user does not participate in match")
	ErrMalformedPieceIndex  = errors.New("malformed piece index set")
	ErrDuplicateSetup       = errors.New("one-time setup already ran")
	ErrDuplicateSubscribe   = errors.New("match already subscribed")
)

// ProgrammingError marks a broken invariant in the calling code.
// It is never recovered from.
type ProgrammingError struct {
	Op  string
	Err error
}

func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("programming error in %s: %v", e.Op, e.Err)
}

func (e *ProgrammingError) Unwrap() error {
	return e.Err
}

func NewProgrammingError(op string, err error) *ProgrammingError {
	return &ProgrammingError{Op: op, Err: err}
}

func IsProgrammingError(err error) bool {
	var pe *ProgrammingError
	return errors.As(err, &pe)
}

// ValidationError rejects a value before any remote write is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
