package txpkg

import "errors"

// Status tags the outcome of a transaction.
type Status int

// Transaction statuses.
const (
	StatusUnknown Status = iota
	StatusCommitted
	StatusDeclined
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusDeclined:
		return "declined"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of a unit of work.
//
// Value is set only for StatusCommitted, Reason only for StatusDeclined and
// Err only for StatusFailed.
type Result[T any] struct {
	Status Status
	Value  T
	Reason error
	Err    error
}

// Ok reports that the work succeeded with v. The executor commits before
// handing the result back to the caller.
func Ok[T any](v T) Result[T] {
	return Result[T]{Status: StatusCommitted, Value: v}
}

// Decline reports that a business rule rejected the operation.
// A declined transaction is committed as a no-op and never retried.
func Decline[T any](reason error) Result[T] {
	return Result[T]{Status: StatusDeclined, Reason: reason}
}

// Fail reports that the work could not complete because of err.
// The executor classifies err to decide whether to retry.
func Fail[T any](err error) Result[T] {
	return Result[T]{Status: StatusFailed, Err: err}
}

// Committed reports whether the transaction committed with a value.
func (r Result[T]) Committed() bool { return r.Status == StatusCommitted }

// Declined reports whether a business rule rejected the operation.
func (r Result[T]) Declined() bool { return r.Status == StatusDeclined }

// Failed reports whether the transaction failed permanently.
func (r Result[T]) Failed() bool { return r.Status == StatusFailed }

// Cancelled reports whether the caller's context ended during a retry wait.
func (r Result[T]) Cancelled() bool {
	return r.Status == StatusFailed && errors.Is(r.Err, ErrCancelled)
}
