package txpkg

import (
	"context"
	"time"
)

// Phase names a step of a transaction attempt.
type Phase string

// Phases reported to hooks.
const (
	PhaseBegin      Phase = "begin"
	PhaseCommit     Phase = "commit"
	PhaseRollback   Phase = "rollback"
	PhaseRetrySleep Phase = "retry-sleep"
)

// Outcome describes how a phase ended.
type Outcome string

// Outcomes reported to hooks.
const (
	OutcomeOK        Outcome = "ok"
	OutcomeDeclined  Outcome = "declined"
	OutcomeConflict  Outcome = "conflict"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Event is passed to hooks after each phase.
//
// For PhaseRollback, Outcome and Err describe the failure that caused the
// rollback and RollbackErr holds the error returned by the rollback itself.
// For PhaseRetrySleep, Delay is the computed backoff.
type Event struct {
	RunID       string
	Attempt     int
	Phase       Phase
	Outcome     Outcome
	Delay       time.Duration
	Err         error
	RollbackErr error
}

// Hook observes executor events. Hooks must not block for long; they run
// synchronously on the caller's goroutine.
type Hook func(ctx context.Context, ev Event)

// Hooks fans an event out to every non-nil hook.
func Hooks(hooks ...Hook) Hook {
	return func(ctx context.Context, ev Event) {
		for _, h := range hooks {
			if h != nil {
				h(ctx, ev)
			}
		}
	}
}
