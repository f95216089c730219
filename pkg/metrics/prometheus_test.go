package metrics

import (
	"testing"

	"ContagionRadar/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordObservation("kafka")
	r.RecordObservation("kafka")
	r.RecordSignal("contagion", "high")
	r.SetEngineStats(models.EngineStats{TrackedAssets: 4, CorrelationEdges: 3})
	r.SetQueueDepth("dispatcher", 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.observations.WithLabelValues("kafka")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.signals.WithLabelValues("contagion", "high")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.engine.WithLabelValues("edges")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.queueDepth.WithLabelValues("dispatcher")))
}
