package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

type breakerTransitions struct {
	service     string
	transitions *prometheus.CounterVec
	open        *prometheus.GaugeVec
}

func newBreakerTransitions(service string) *breakerTransitions {
	return &breakerTransitions{
		service: service,
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state changes by operation.",
			},
			[]string{"service", "operation", "from", "to"},
		),
		open: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_open",
				Help:      "1 while the breaker of an operation is open.",
			},
			[]string{"service", "operation"},
		),
	}
}

func (b *breakerTransitions) register(registry *prometheus.Registry) {
	registry.MustRegister(b.transitions, b.open)
}

func (b *breakerTransitions) observe(operation string, from, to gobreaker.State) {
	b.transitions.WithLabelValues(b.service, operation, from.String(), to.String()).Inc()
	value := 0.0
	if to == gobreaker.StateOpen {
		value = 1
	}
	b.open.WithLabelValues(b.service, operation).Set(value)
}
