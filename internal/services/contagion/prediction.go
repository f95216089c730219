package contagion

import (
	"math"
	"sort"

	"ContagionRadar/internal/domain/models"
)

const (
	sharedSectorBoost    = 1.3
	sharedChainBoost     = 1.2
	minPredictionProb    = 0.3
	predictedImpactDecay = 0.8
)

// predict expands one level from the affected assets of event to their unaffected
// neighbors and ranks them by propagation probability.
func (e *Engine) predict(event models.ContagionEvent) []models.PredictedAsset {
	reached := map[string]bool{event.OriginAsset: true}
	for _, a := range event.AffectedAssets {
		reached[a.Asset] = true
	}

	horizon := e.cfg.PredictionHorizon.Minutes()
	best := make(map[string]models.PredictedAsset)
	for _, pred := range event.AffectedAssets {
		for _, edge := range e.graph.edgesOf(pred.Asset) {
			cand := edge.Other(pred.Asset)
			if reached[cand] {
				continue
			}
			corr := math.Abs(edge.Correlation)
			candChain := e.history.chainOf(cand)

			prob := corr * event.Velocity
			if e.sharesSector(pred.Asset, cand) {
				prob *= sharedSectorBoost
			}
			if sameChain(pred.Chain, candChain) {
				prob *= sharedChainBoost
			}
			if sameFamily(candChain, event.OriginChain) {
				prob *= e.cfg.Layer2ContagionBoost
			}
			prob *= 1 + e.cfg.BridgeAssetWeight*float64(len(e.bridgeAssets(pred.Asset, cand)))
			prob = math.Min(1, prob)
			if prob <= minPredictionProb {
				continue
			}

			minutes := pred.DelayMinutes + e.delayMinutes(pred.Asset, cand, corr)
			if horizon > 0 && minutes > horizon {
				continue
			}
			if cur, ok := best[cand]; ok && cur.Probability >= prob {
				continue
			}
			best[cand] = models.PredictedAsset{
				Asset:            cand,
				Via:              pred.Asset,
				Probability:      prob,
				EstimatedMinutes: minutes,
				EstimatedImpact:  clamp01(corr * pred.Impact * predictedImpactDecay),
			}
		}
	}

	out := make([]models.PredictedAsset, 0, len(best))
	for _, p := range best {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		if out[i].EstimatedMinutes != out[j].EstimatedMinutes {
			return out[i].EstimatedMinutes < out[j].EstimatedMinutes
		}
		return out[i].Asset < out[j].Asset
	})
	if len(out) > e.cfg.MaxPredictions {
		out = out[:e.cfg.MaxPredictions]
	}
	return out
}
