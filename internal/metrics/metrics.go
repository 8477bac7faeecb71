// Package metrics exposes Prometheus counters for ledger operations.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the ledger collectors. A nil *Metrics is a no-op.
type Metrics struct {
	operations *prometheus.CounterVec
	events     *prometheus.CounterVec
}

// New registers the ledger collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "debtledger",
			Name:      "operations_total",
			Help:      "Ledger calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "debtledger",
			Name:      "events_total",
			Help:      "Ledger events emitted by name.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.operations, m.events)
	return m
}

// Operation counts one ledger call.
func (m *Metrics) Operation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// Event counts one emitted ledger event.
func (m *Metrics) Event(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}
