package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Circuit state gauge values.
const (
	CircuitClosed   = 0
	CircuitHalfOpen = 1
	CircuitOpen     = 2
)

// ResilienceMetrics tracks circuit breakers and retries around the payment
// gateway.
type ResilienceMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	retries     *prometheus.CounterVec
	calls       *prometheus.CounterVec
}

func NewResilienceMetrics(reg prometheus.Registerer) *ResilienceMetrics {
	if reg == nil {
		return &ResilienceMetrics{}
	}
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "circuit",
		Name:      "state",
		Help:      "Circuit state (0 closed, 1 half-open, 2 open).",
	}, []string{"circuit"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "circuit",
		Name:      "transitions_total",
		Help:      "Circuit state transitions.",
	}, []string{"circuit", "from", "to"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "retries_total",
		Help:      "Retried payment gateway calls by operation.",
	}, []string{"operation"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(state, transitions, retries, calls)
	return &ResilienceMetrics{state: state, transitions: transitions, retries: retries, calls: calls}
}

// ObserveTransition records a transition and the resulting state.
func (m *ResilienceMetrics) ObserveTransition(circuit, from, to string, stateValue float64) {
	if m == nil || m.state == nil {
		return
	}
	m.state.WithLabelValues(normalizeLabel(circuit)).Set(stateValue)
	m.transitions.WithLabelValues(normalizeLabel(circuit), from, to).Inc()
}

func (m *ResilienceMetrics) IncRetry(operation string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncCall counts a finished gateway call. outcome is ok, error or rejected.
func (m *ResilienceMetrics) IncCall(operation, outcome string) {
	if m == nil || m.calls == nil {
		return
	}
	m.calls.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}
