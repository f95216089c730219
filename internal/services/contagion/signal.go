package contagion

import (
	"math"
	"sort"

	"ContagionRadar/internal/domain/models"
)

// relatedExposureFactor attenuates exposure spilling onto related chains.
const relatedExposureFactor = 0.5

func (e *Engine) assembleSignal(event models.ContagionEvent, predictions []models.PredictedAsset, rotation *models.SectorRotation) models.ContagionSignal {
	avgCorr := averageCorrelation(event.AffectedAssets)
	return models.ContagionSignal{
		Event:    event,
		Severity: severity(event.Velocity, event.Reach),
		Metrics: models.ContagionMetrics{
			CurrentReach:       event.Reach,
			ProjectedReach:     event.Reach + len(predictions),
			Velocity:           event.Velocity,
			AverageCorrelation: avgCorr,
		},
		Predictions:    predictions,
		ChainExposure:  e.chainExposure(event.AffectedAssets),
		SectorRotation: rotation,
		Confidence:     e.confidence(event, avgCorr, predictions),
		GeneratedAt:    event.Timestamp,
	}
}

func severity(velocity float64, reach int) models.Severity {
	switch {
	case velocity > 0.7 && reach > 5:
		return models.SeverityHigh
	case velocity > 0.5 || reach > 3:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func (e *Engine) confidence(event models.ContagionEvent, avgCorr float64, predictions []models.PredictedAsset) float64 {
	c := 0.5
	if event.Velocity > e.cfg.VelocityThreshold {
		c += 0.2
	}
	if event.Reach > 3 {
		c += 0.15
	}
	if avgCorr > 0.7 {
		c += 0.15
	}
	if len(predictions) >= 4 && predictions[0].Probability > 0.7 {
		c += 0.1
	}
	return math.Min(1, c)
}

func averageCorrelation(affected []models.AffectedAsset) float64 {
	if len(affected) == 0 {
		return 0
	}
	total := 0.0
	for _, a := range affected {
		total += math.Abs(a.Correlation)
	}
	return total / float64(len(affected))
}

// chainExposure sums impact per directly affected chain, then spills a share onto related
// chains that were not hit, scaled by their susceptibility.
func (e *Engine) chainExposure(affected []models.AffectedAsset) []models.ChainExposure {
	direct := make(map[string]float64)
	for _, a := range affected {
		if a.Chain != "" {
			direct[a.Chain] += a.Impact
		}
	}
	indirect := make(map[string]float64)
	for chain, exp := range direct {
		for _, rel := range relatedChains(chain) {
			if _, hit := direct[rel]; hit {
				continue
			}
			v := math.Min(1, exp) * relatedExposureFactor * e.chains.susceptibility(rel)
			if v > indirect[rel] {
				indirect[rel] = v
			}
		}
	}

	out := make([]models.ChainExposure, 0, len(direct)+len(indirect))
	for chain, exp := range direct {
		out = append(out, models.ChainExposure{Chain: chain, Exposure: math.Min(1, exp), Direct: true})
	}
	for chain, exp := range indirect {
		if exp > 0 {
			out = append(out, models.ChainExposure{Chain: chain, Exposure: exp})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exposure != out[j].Exposure {
			return out[i].Exposure > out[j].Exposure
		}
		return out[i].Chain < out[j].Chain
	})
	return out
}
