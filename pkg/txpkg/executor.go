package txpkg

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/go-petr/pet-ledger/pkg/backoffpkg"
)

// Beginner opens transactions of type X.
type Beginner[X Tx] interface {
	Begin(ctx context.Context) (X, error)
}

// BeginnerFunc adapts a function to the Beginner interface.
type BeginnerFunc[X Tx] func(ctx context.Context) (X, error)

// Begin calls f(ctx).
func (f BeginnerFunc[X]) Begin(ctx context.Context) (X, error) {
	return f(ctx)
}

// Work is a unit of work executed once per transaction attempt.
//
// It must read all state it needs through tx on every invocation and must not
// cause side effects visible outside the transaction before it commits.
type Work[X Tx, T any] func(ctx context.Context, tx X) Result[T]

// Classifier reports whether err is a transient conflict worth retrying.
type Classifier func(err error) bool

// Executor runs units of work with retry on serialization conflicts.
// It holds configuration only and is safe for concurrent use. A nil or zero
// Executor behaves like New().
type Executor struct {
	policy      backoffpkg.Policy
	retriable   Classifier
	hook        Hook
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithPolicy sets the backoff policy.
func WithPolicy(p backoffpkg.Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithClassifier replaces the default IsRetriable classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.retriable = c
		}
	}
}

// WithHook installs an observability hook. Use Hooks to install several.
func WithHook(h Hook) Option {
	return func(e *Executor) { e.hook = h }
}

// WithMaxAttempts caps the number of attempts. Zero or less means unbounded.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) { e.maxAttempts = n }
}

// WithSleep replaces the context-aware sleep between retries.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if f != nil {
			e.sleep = f
		}
	}
}

// New returns an Executor. Without options it uses backoffpkg.DefaultPolicy,
// IsRetriable and retries forever.
func New(opts ...Option) *Executor {
	e := &Executor{
		policy:    backoffpkg.DefaultPolicy(),
		retriable: IsRetriable,
		sleep:     sleepContext,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run begins a transaction on db, invokes work and commits.
//
// Retriable failures of the work or of the commit roll the transaction back,
// wait for the policy delay and start over. Permanent failures roll back and
// return a failed Result at once. A declined Result is committed and returned
// without retry. Run never panics on behalf of work and never returns a
// StatusUnknown Result.
func Run[X Tx, T any](ctx context.Context, e *Executor, db Beginner[X], work Work[X, T]) Result[T] {
	e = e.withDefaults()
	runID := uuid.NewString()

	for attempt := 0; ; attempt++ {
		res, err := runOnce(ctx, e, db, work, runID, attempt)
		if err == nil {
			return res
		}

		if !e.retriable(err) {
			return Fail[T](err)
		}

		if e.maxAttempts > 0 && attempt+1 >= e.maxAttempts {
			return Fail[T](fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempt+1, err))
		}

		delay := e.policy.Delay(attempt)
		e.emit(ctx, Event{RunID: runID, Attempt: attempt, Phase: PhaseRetrySleep, Outcome: OutcomeConflict, Delay: delay, Err: err})

		if serr := e.sleep(ctx, delay); serr != nil {
			e.emit(ctx, Event{RunID: runID, Attempt: attempt, Phase: PhaseRetrySleep, Outcome: OutcomeCancelled, Delay: delay, Err: serr})
			return Fail[T](fmt.Errorf("%w: %w", ErrCancelled, serr))
		}
	}
}

// withDefaults fills in the fields of an Executor that was not built by New.
func (e *Executor) withDefaults() *Executor {
	if e == nil {
		return New()
	}

	if e.retriable != nil && e.sleep != nil {
		return e
	}

	c := *e

	if c.retriable == nil {
		c.retriable = IsRetriable

		if c.policy == (backoffpkg.Policy{}) {
			c.policy = backoffpkg.DefaultPolicy()
		}
	}

	if c.sleep == nil {
		c.sleep = sleepContext
	}

	return &c
}

// runOnce performs a single attempt. A nil error means res is final.
func runOnce[X Tx, T any](ctx context.Context, e *Executor, db Beginner[X], work Work[X, T], runID string, attempt int) (Result[T], error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		e.emit(ctx, Event{RunID: runID, Attempt: attempt, Phase: PhaseBegin, Outcome: e.outcome(err), Err: err})
		return Result[T]{}, err
	}

	e.emit(ctx, Event{RunID: runID, Attempt: attempt, Phase: PhaseBegin, Outcome: OutcomeOK})

	res := invoke(ctx, tx, work)

	switch res.Status {
	case StatusCommitted, StatusDeclined:
		if err := tx.Commit(ctx); err != nil {
			e.emit(ctx, Event{RunID: runID, Attempt: attempt, Phase: PhaseCommit, Outcome: e.outcome(err), Err: err})
			e.rollback(ctx, tx, runID, attempt, err)

			return Result[T]{}, err
		}

		outcome := OutcomeOK
		if res.Status == StatusDeclined {
			outcome = OutcomeDeclined
		}

		e.emit(ctx, Event{RunID: runID, Attempt: attempt, Phase: PhaseCommit, Outcome: outcome})

		return res, nil
	case StatusFailed:
		err = res.Err
		if err == nil {
			err = ErrNoOutcome
		}
	default:
		err = ErrNoOutcome
	}

	e.rollback(ctx, tx, runID, attempt, err)

	return Result[T]{}, err
}

func invoke[X Tx, T any](ctx context.Context, tx X, work Work[X, T]) (res Result[T]) {
	defer func() {
		if v := recover(); v != nil {
			res = Fail[T](&PanicError{Value: v, Stack: debug.Stack()})
		}
	}()

	return work(ctx, tx)
}

func (e *Executor) rollback(ctx context.Context, tx Tx, runID string, attempt int, cause error) {
	rbErr := tx.Rollback(ctx)
	e.emit(ctx, Event{RunID: runID, Attempt: attempt, Phase: PhaseRollback, Outcome: e.outcome(cause), Err: cause, RollbackErr: rbErr})
}

func (e *Executor) outcome(err error) Outcome {
	if e.retriable(err) {
		return OutcomeConflict
	}

	return OutcomeError
}

func (e *Executor) emit(ctx context.Context, ev Event) {
	if e.hook == nil {
		return
	}

	defer func() { _ = recover() }()

	e.hook(ctx, ev)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
