package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the check module.
type Metrics struct {
	// Decision outcomes by outcome and provider
	Decisions *prometheus.CounterVec

	// Outbound siteverify call latency by provider
	VerifyLatency *prometheus.HistogramVec

	// Full validation latency including rule lookup
	ValidateLatency prometheus.Histogram
}

// New creates a new Metrics instance with all check module metrics registered.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tokengate_check_decisions_total",
			Help: "Total validation decisions by outcome and provider",
		}, []string{"outcome", "provider"}),

		VerifyLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tokengate_check_verify_duration_seconds",
			Help:    "Duration of outbound verification calls by provider",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),

		ValidateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokengate_check_validate_duration_seconds",
			Help:    "Duration of full validation including rule lookup",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// IncrementDecision records a validation decision.
func (m *Metrics) IncrementDecision(outcome, provider string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome, provider).Inc()
	}
}

// ObserveVerifyLatency records the duration of an outbound verification call.
func (m *Metrics) ObserveVerifyLatency(provider string, d time.Duration) {
	if m != nil {
		m.VerifyLatency.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// ObserveValidateLatency records the total validation duration.
func (m *Metrics) ObserveValidateLatency(d time.Duration) {
	if m != nil {
		m.ValidateLatency.Observe(d.Seconds())
	}
}
