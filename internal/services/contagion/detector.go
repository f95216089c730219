package contagion

import (
	"math"
	"sort"

	"ContagionRadar/internal/domain/models"
	"ContagionRadar/internal/services/features"

	"github.com/google/uuid"
)

// RandSource supplies uniform values in [0, 1) for stochastic admission.
// *math/rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

// detectContagion checks whether the latest observation of symbol completes a sentiment
// swing large enough to count as a shock, and collects the correlated neighbors it reached.
func (e *Engine) detectContagion(obs models.AssetObservation) (*models.ContagionEvent, bool) {
	symbol := obs.Symbol
	sents := e.history.sentiments(symbol)
	delta, ok := features.WindowDelta(sents, trendWindow)
	if !ok || math.Abs(delta) < e.cfg.ContagionThreshold {
		return nil, false
	}

	originChain := e.history.chainOf(symbol)
	var (
		affected []models.AffectedAsset
		against  bool
	)
	for _, edge := range e.graph.edgesOf(symbol) {
		neighbor := edge.Other(symbol)
		trend, _ := e.history.trend(neighbor)
		moving := trend != 0 && math.Signbit(trend) == math.Signbit(delta)
		if !moving && !e.admit(edge.Correlation) {
			continue
		}
		if !moving && trend != 0 {
			against = true
		}

		corr := math.Abs(edge.Correlation)
		chain := e.history.chainOf(neighbor)
		impact := corr * math.Abs(delta)
		if crossChain(originChain, chain) {
			impact *= e.cfg.CrossChainMultiplier
		}
		if isLayer2(chain) {
			impact *= e.cfg.Layer2ContagionBoost
		}
		affected = append(affected, models.AffectedAsset{
			Asset:        neighbor,
			Chain:        chain,
			DelayMinutes: e.delayMinutes(symbol, neighbor, corr),
			Impact:       clamp01(impact),
			Correlation:  edge.Correlation,
		})
	}
	if len(affected) == 0 {
		return nil, false
	}

	sort.SliceStable(affected, func(i, j int) bool {
		if affected[i].DelayMinutes != affected[j].DelayMinutes {
			return affected[i].DelayMinutes < affected[j].DelayMinutes
		}
		return affected[i].Impact > affected[j].Impact
	})

	polarity := models.PolarityPositive
	if delta < 0 {
		polarity = models.PolarityNegative
	}
	if against {
		polarity = models.PolarityMixed
	}

	n := len(sents)
	return &models.ContagionEvent{
		ID:               uuid.NewString(),
		OriginAsset:      symbol,
		OriginChain:      originChain,
		Timestamp:        obs.Timestamp,
		InitialSentiment: features.Mean(sents[n-2*trendWindow : n-trendWindow]),
		SentimentChange:  delta,
		AffectedAssets:   affected,
		Velocity:         velocity(affected),
		Reach:            len(affected),
		Polarity:         polarity,
	}, true
}

// admit applies the configured rule to a neighbor that is not already moving with the origin.
// Both modes use the edge magnitude so inverse relationships spread too.
func (e *Engine) admit(corr float64) bool {
	strength := math.Abs(corr)
	if e.cfg.AdmissionMode == AdmissionStochastic {
		return e.rand.Float64() < strength
	}
	return strength >= e.cfg.AdmissionCutoff
}

// velocity rewards fast spread (70%) and broad spread (30%).
func velocity(affected []models.AffectedAsset) float64 {
	if len(affected) == 0 {
		return 0
	}
	total := 0.0
	for _, a := range affected {
		total += a.DelayMinutes
	}
	avg := total / float64(len(affected))
	speed := math.Max(0, 1-avg/60)
	breadth := math.Min(1, float64(len(affected))/10)
	return 0.7*speed + 0.3*breadth
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
