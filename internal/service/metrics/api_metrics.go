package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// APIMetrics tracks the contagion query and ingest endpoints.
type APIMetrics struct {
	Latency  *prometheus.HistogramVec
	Errors   *prometheus.CounterVec
	Throttle *prometheus.CounterVec
}

// NewAPIMetrics registers endpoint collectors on reg.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	f := promauto.With(reg)
	return &APIMetrics{
		Latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "contagion",
				Subsystem: "api",
				Name:      "latency_seconds",
				Help:      "Latency of contagion API endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		Errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contagion",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Errors by contagion API endpoint",
			},
			[]string{"endpoint"},
		),
		Throttle: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "contagion",
				Subsystem: "api",
				Name:      "throttled_total",
				Help:      "Requests rejected by the per-client rate limiter",
			},
			[]string{"endpoint"},
		),
	}
}

// Observe records the latency of one call to endpoint, counting it as an error when failed.
func (m *APIMetrics) Observe(endpoint string, start time.Time, failed bool) {
	if m == nil {
		return
	}
	m.Latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if failed {
		m.Errors.WithLabelValues(endpoint).Inc()
	}
}

// Throttled counts a rate-limited request.
func (m *APIMetrics) Throttled(endpoint string) {
	if m == nil {
		return
	}
	m.Throttle.WithLabelValues(endpoint).Inc()
}
