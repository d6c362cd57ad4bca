package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	Operations       *prometheus.CounterVec
	RefreshConflicts prometheus.Counter
	EventFailures    prometheus.Counter
}

// New registers the service counters on reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "operations_total",
			Help:      "Authentication and session operations by outcome.",
		}, []string{"operation", "result"}),
		RefreshConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "refresh_conflicts_total",
			Help:      "Concurrent refresh token creations resolved by re-reading the winner.",
		}),
		EventFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "event_publish_failures_total",
			Help:      "Domain events that could not be published.",
		}),
	}
}

// Observe counts one operation. Safe on a nil receiver.
func (m *Metrics) Observe(operation string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.Operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.RefreshConflicts.Inc()
}

func (m *Metrics) EventFailed() {
	if m == nil {
		return
	}
	m.EventFailures.Inc()
}
