package contagion

import (
	"math"
	"testing"
	"time"

	"ContagionRadar/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oscillatingVolume(i int) float64 { return 1000 + 100*math.Sin(0.9*float64(i)) }

func TestPredictionReachesSecondHop(t *testing.T) {
	e := New(Config{})
	rec := &recorder{}
	e.Subscribe(rec)

	feed(t, e, "C", 30, constant(0.1), oscillatingVolume)
	feed(t, e, "B", 30, jump, oscillatingVolume)
	feed(t, e, "A", 30, jump, constant(500))

	signals := rec.from("A")
	require.NotEmpty(t, signals)
	sig := signals[0]
	require.Len(t, sig.Event.AffectedAssets, 1)
	require.Len(t, sig.Predictions, 1)

	p := sig.Predictions[0]
	assert.Equal(t, "C", p.Asset)
	assert.Equal(t, "B", p.Via)
	assert.InDelta(t, sig.Event.Velocity, p.Probability, 1e-9)
	assert.InDelta(t, 10.0, p.EstimatedMinutes, 1e-9)
	assert.InDelta(t, sig.Event.AffectedAssets[0].Impact*0.8, p.EstimatedImpact, 1e-6)
	assert.Equal(t, 2, sig.Metrics.ProjectedReach)
}

func TestPredictionFiltersAndRanks(t *testing.T) {
	e := New(Config{MaxPredictions: 2, PredictionHorizon: 30 * time.Minute})
	e.history.append(models.AssetObservation{Symbol: "O", Chain: "ethereum"})
	e.history.append(models.AssetObservation{Symbol: "P", Chain: "ethereum"})
	for _, sym := range []string{"X", "Y", "Z", "W"} {
		e.history.append(models.AssetObservation{Symbol: sym})
	}
	e.history.append(models.AssetObservation{Symbol: "L", Chain: "arbitrum"})

	e.graph.put(models.CorrelationEdge{AssetA: "O", AssetB: "P", Correlation: 0.9, Strength: models.StrengthStrong})
	e.graph.put(models.CorrelationEdge{AssetA: "P", AssetB: "X", Correlation: 0.9, Strength: models.StrengthStrong})
	e.graph.put(models.CorrelationEdge{AssetA: "P", AssetB: "Y", Correlation: -0.7, Strength: models.StrengthModerate})
	e.graph.put(models.CorrelationEdge{AssetA: "P", AssetB: "Z", Correlation: 0.35, Strength: models.StrengthWeak})
	e.graph.put(models.CorrelationEdge{AssetA: "P", AssetB: "L", Correlation: 0.6, Strength: models.StrengthWeak})
	e.graph.put(models.CorrelationEdge{AssetA: "P", AssetB: "W", Correlation: 0.99, Strength: models.StrengthStrong})
	e.relationships[newPairKey("P", "W")] = &models.AssetRelationship{AssetA: "P", AssetB: "W", LeadLagMinutes: -45}

	event := models.ContagionEvent{
		OriginAsset: "O",
		OriginChain: "ethereum",
		AffectedAssets: []models.AffectedAsset{
			{Asset: "P", Chain: "ethereum", DelayMinutes: 5, Impact: 0.5, Correlation: 0.9},
		},
		Velocity: 0.8,
	}
	preds := e.predict(event)

	require.Len(t, preds, 2)
	assert.Equal(t, "X", preds[0].Asset)
	assert.InDelta(t, 0.72, preds[0].Probability, 1e-9)
	assert.InDelta(t, 11.0, preds[0].EstimatedMinutes, 1e-9)
	assert.Equal(t, "L", preds[1].Asset)
	assert.InDelta(t, 0.6*0.8*1.3, preds[1].Probability, 1e-9)
	for _, p := range preds {
		assert.NotEqual(t, "O", p.Asset)
		assert.NotEqual(t, "W", p.Asset)
	}
}

func TestPredictionKeepsBestPath(t *testing.T) {
	e := New(Config{})
	for _, sym := range []string{"O", "P", "Q", "X"} {
		e.history.append(models.AssetObservation{Symbol: sym})
	}
	e.graph.put(models.CorrelationEdge{AssetA: "P", AssetB: "X", Correlation: 0.6, Strength: models.StrengthWeak})
	e.graph.put(models.CorrelationEdge{AssetA: "Q", AssetB: "X", Correlation: 0.95, Strength: models.StrengthStrong})

	preds := e.predict(models.ContagionEvent{
		OriginAsset: "O",
		AffectedAssets: []models.AffectedAsset{
			{Asset: "P", DelayMinutes: 5, Impact: 0.4},
			{Asset: "Q", DelayMinutes: 20, Impact: 0.4},
		},
		Velocity: 0.9,
	})
	require.Len(t, preds, 1)
	assert.Equal(t, "Q", preds[0].Via)
	assert.InDelta(t, 0.95*0.9, preds[0].Probability, 1e-9)
	assert.InDelta(t, 20+estimateDelay(0.95), preds[0].EstimatedMinutes, 1e-9)
}
