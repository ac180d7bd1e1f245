package txhooks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

// Trace returns a hook adding executor events to the span found in ctx.
// It does nothing when ctx carries no recording span.
func Trace() txpkg.Hook {
	return func(ctx context.Context, ev txpkg.Event) {
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}

		attrs := []attribute.KeyValue{
			attribute.String("tx.run_id", ev.RunID),
			attribute.Int("tx.attempt", ev.Attempt),
			attribute.String("tx.outcome", string(ev.Outcome)),
		}

		if ev.Phase == txpkg.PhaseRetrySleep {
			attrs = append(attrs, attribute.Int64("tx.delay_ms", ev.Delay.Milliseconds()))
		}

		if ev.Err != nil {
			attrs = append(attrs, attribute.String("tx.error", ev.Err.Error()))
		}

		span.AddEvent("tx."+string(ev.Phase), trace.WithAttributes(attrs...))
	}
}
