package txhooks

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-petr/pet-ledger/pkg/txpkg"
)

const (
	namespace = "ledger"
	subsystem = "tx"
)

// Metrics counts executor events in Prometheus.
type Metrics struct {
	// By phase and outcome
	events *prometheus.CounterVec
	// Counted once per begin, so it includes retries
	attempts prometheus.Counter
	// Backoff delays actually scheduled
	retryDelay prometheus.Histogram
}

// NewMetrics creates the transaction metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Total number of transaction phases by outcome",
		}, []string{"phase", "outcome"}),

		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Total number of transaction attempts including retries",
		}),

		retryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retry_delay_seconds",
			Help:      "Backoff delay before a transaction retry in seconds",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8},
		}),
	}

	for _, c := range []prometheus.Collector{m.events, m.attempts, m.retryDelay} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Hook returns the executor hook updating m.
func (m *Metrics) Hook() txpkg.Hook {
	return func(_ context.Context, ev txpkg.Event) {
		m.events.WithLabelValues(string(ev.Phase), string(ev.Outcome)).Inc()

		switch {
		case ev.Phase == txpkg.PhaseBegin:
			m.attempts.Inc()
		case ev.Phase == txpkg.PhaseRetrySleep && ev.Outcome == txpkg.OutcomeConflict:
			m.retryDelay.Observe(ev.Delay.Seconds())
		}
	}
}
