package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPearsonAntiCorrelatedSine(t *testing.T) {
	xs := make([]float64, 30)
	ys := make([]float64, 30)
	for i := range xs {
		xs[i] = math.Sin(float64(i) * 0.4)
		ys[i] = -xs[i]
	}
	assert.InDelta(t, -1.0, Pearson(xs, ys), 1e-9)
	assert.InDelta(t, 1.0, Pearson(xs, xs), 1e-9)
}

func TestPearsonZeroVariance(t *testing.T) {
	flat := []float64{0.2, 0.2, 0.2, 0.2}
	moving := []float64{0.1, 0.4, -0.3, 0.9}
	assert.Equal(t, 0.0, Pearson(flat, moving))
	assert.Equal(t, 0.0, Pearson(moving[:1], moving[:1]))
}

func TestPearsonIsSymmetric(t *testing.T) {
	xs := []float64{0.3, -0.1, 0.5, 0.2, 0.8, -0.4}
	ys := []float64{0.1, 0.2, 0.4, 0.1, 0.6, -0.2}
	assert.Equal(t, Pearson(xs, ys), Pearson(ys, xs))
}

func TestWindowDelta(t *testing.T) {
	xs := []float64{0, 0, 0, 0, 0, 0.6, 0.6, 0.6, 0.6, 0.6}
	d, ok := WindowDelta(xs, 5)
	require.True(t, ok)
	assert.InDelta(t, 0.6, d, 1e-12)

	_, ok = WindowDelta(xs[:9], 5)
	assert.False(t, ok)
}

func TestAlignByTimeTolerance(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	a := []time.Time{t0, t0.Add(5 * time.Minute), t0.Add(10 * time.Minute), t0.Add(30 * time.Minute)}
	b := []time.Time{t0.Add(time.Minute), t0.Add(12 * time.Minute), t0.Add(20 * time.Minute)}

	pairs := AlignByTime(a, b, 5*time.Minute)
	require.Len(t, pairs, 2)
	assert.Equal(t, Pair{A: 0, B: 0}, pairs[0])
	assert.Equal(t, Pair{A: 2, B: 1}, pairs[1])
}

func TestLeadLagDetectsLeader(t *testing.T) {
	const n, shift = 60, 3
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = math.Sin(float64(i)*0.7) + 0.3*math.Cos(float64(i)*1.9)
	}
	for i := 0; i < n; i++ {
		if i >= shift {
			ys[i] = xs[i-shift]
		}
	}

	lag, corr := LeadLag(xs, ys, 10, 10)
	assert.Equal(t, shift, lag)
	assert.InDelta(t, 1.0, corr, 1e-6)

	lag, _ = LeadLag(ys, xs, 10, 10)
	assert.Equal(t, -shift, lag)
}

func TestLeadLagPrefersZeroOnIdenticalSeries(t *testing.T) {
	xs := []float64{0.1, 0.5, -0.2, 0.7, 0.3, -0.6, 0.2, 0.9, -0.1, 0.4, 0.0, 0.8}
	lag, corr := LeadLag(xs, xs, 10, 6)
	assert.Equal(t, 0, lag)
	assert.InDelta(t, 1.0, corr, 1e-9)
}
