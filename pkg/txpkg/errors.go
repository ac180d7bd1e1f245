package txpkg

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled indicates that the caller's context ended while waiting for a retry.
	ErrCancelled = errors.New("transaction retry cancelled")
	// ErrAttemptsExhausted indicates that the configured attempt ceiling was reached.
	ErrAttemptsExhausted = errors.New("transaction attempts exhausted")
	// ErrNoOutcome indicates that a unit of work returned a zero Result.
	ErrNoOutcome = errors.New("unit of work returned no outcome")
)

// ConflictError marks a store error as a transient serialization conflict.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("serialization conflict: %v", e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Retriable reports true: the transaction lost a race and must restart.
func (e *ConflictError) Retriable() bool {
	return true
}

// Conflict wraps err to mark it as a retriable conflict.
func Conflict(err error) error {
	if err == nil {
		return nil
	}

	return &ConflictError{Err: err}
}

// IsRetriable is the default classifier. It reports whether any error in err's
// chain exposes a Retriable method that returns true.
func IsRetriable(err error) bool {
	var r interface{ Retriable() bool }
	if errors.As(err, &r) {
		return r.Retriable()
	}

	return false
}

// PanicError is returned when a unit of work panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unit of work panicked: %v", e.Value)
}
