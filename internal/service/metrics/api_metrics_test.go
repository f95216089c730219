package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAPIMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAPIMetrics(reg)

	m.Observe("contagion", time.Now(), false)
	m.Observe("contagion", time.Now(), true)
	m.Throttled("observations")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("contagion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Throttle.WithLabelValues("observations")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Latency))

	var nilMetrics *APIMetrics
	assert.NotPanics(t, func() { nilMetrics.Observe("x", time.Now(), true) })
}
