// Package txhooks provides executor hooks that log, count and trace
// transaction attempts.
package txhooks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

// Log returns a hook writing executor events to the logger found in ctx, or
// to fallback when ctx carries none.
//
// Retry sleeps are logged at warn level and failures at error level, the rest
// at debug.
func Log(fallback zerolog.Logger) txpkg.Hook {
	return func(ctx context.Context, ev txpkg.Event) {
		l := zerolog.Ctx(ctx)
		if l.GetLevel() == zerolog.Disabled {
			l = &fallback
		}

		var e *zerolog.Event

		switch {
		case ev.Phase == txpkg.PhaseRetrySleep:
			e = l.Warn()
		case ev.Outcome == txpkg.OutcomeError || ev.RollbackErr != nil:
			e = l.Error()
		default:
			e = l.Debug()
		}

		e = e.
			Str("run_id", ev.RunID).
			Int("attempt", ev.Attempt).
			Str("phase", string(ev.Phase)).
			Str("outcome", string(ev.Outcome))

		if ev.Phase == txpkg.PhaseRetrySleep {
			e = e.Dur("delay", ev.Delay)
		}

		if ev.Err != nil {
			e = e.Err(ev.Err)
		}

		if ev.RollbackErr != nil {
			e = e.AnErr("rollback_error", ev.RollbackErr)
		}

		e.Msg("tx")
	}
}
