package metrics

import (
	"ContagionRadar/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	observations *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	signals      *prometheus.CounterVec
	engine       *prometheus.GaugeVec
	queueDepth   *prometheus.GaugeVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		observations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contagion_observations_total",
				Help: "Total number of observations recorded into the engine",
			},
			[]string{"source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contagion_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contagion_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contagion_signals_total",
				Help: "Emitted engine outputs by kind and severity",
			},
			[]string{"kind", "severity"},
		),
		engine: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "contagion_engine_state",
				Help: "Sizes of the engine's tracked state",
			},
			[]string{"component"},
		),
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "contagion_queue_depth",
				Help: "Items waiting in internal queues",
			},
			[]string{"queue"},
		),
	}
}

// RecordObservation counts an observation accepted from source.
func (r *Recorder) RecordObservation(source string) {
	r.observations.WithLabelValues(source).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordSignal counts an emitted contagion signal or sector rotation.
func (r *Recorder) RecordSignal(kind, severity string) {
	r.signals.WithLabelValues(kind, severity).Inc()
}

func (r *Recorder) SetEngineStats(s models.EngineStats) {
	r.engine.WithLabelValues("assets").Set(float64(s.TrackedAssets))
	r.engine.WithLabelValues("edges").Set(float64(s.CorrelationEdges))
	r.engine.WithLabelValues("contagion_events").Set(float64(s.ContagionEvents))
	r.engine.WithLabelValues("sector_rotations").Set(float64(s.SectorRotations))
	r.engine.WithLabelValues("chains").Set(float64(s.TrackedChains))
}

func (r *Recorder) SetQueueDepth(name string, depth int) {
	r.queueDepth.WithLabelValues(name).Set(float64(depth))
}
