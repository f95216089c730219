package contagion

import (
	"math"

	"ContagionRadar/internal/domain/models"
	"ContagionRadar/internal/services/features"
)

const (
	leadLagPeriodMinutes = 5
	leadLagMaxPeriods    = 10
)

// refreshRelationship recomputes lead-lag, shared sectors and bridges for a retained edge.
func (e *Engine) refreshRelationship(edge models.CorrelationEdge, s alignedSeries) {
	minOverlap := e.cfg.MinAlignedSamples / 2
	lag, _ := features.LeadLag(s.sentA, s.sentB, leadLagMaxPeriods, minOverlap)
	e.relationships[newPairKey(edge.AssetA, edge.AssetB)] = &models.AssetRelationship{
		AssetA:         edge.AssetA,
		AssetB:         edge.AssetB,
		Correlation:    edge.Correlation,
		LeadLagMinutes: lag * leadLagPeriodMinutes,
		SharedSectors:  e.sharedSectors(edge.AssetA, edge.AssetB),
		BridgeAssets:   e.bridgeAssets(edge.AssetA, edge.AssetB),
	}
}

func (e *Engine) sharedSectors(a, b string) []string {
	sa := e.history.sectorOf(a)
	if sa == "" || sa != e.history.sectorOf(b) {
		return []string{}
	}
	return []string{sa}
}

func (e *Engine) sharesSector(a, b string) bool { return len(e.sharedSectors(a, b)) > 0 }

// bridgeAssets lists assets holding at least moderate edges to both a and b.
// Computed from the live graph so it reflects edges added after the pair's own refresh.
func (e *Engine) bridgeAssets(a, b string) []string {
	out := []string{}
	for _, n := range e.graph.neighbors(a) {
		if n == b {
			continue
		}
		ea, _ := e.graph.get(a, n)
		if !ea.AtLeastModerate() {
			continue
		}
		if eb, ok := e.graph.get(b, n); ok && eb.AtLeastModerate() {
			out = append(out, n)
		}
	}
	return out
}

// delayMinutes is the expected propagation delay between two assets: the measured
// lead-lag when one exists, otherwise an estimate that shrinks as correlation grows.
func (e *Engine) delayMinutes(a, b string, corr float64) float64 {
	if rel, ok := e.relationships[newPairKey(a, b)]; ok && rel.LeadLagMinutes != 0 {
		return math.Abs(float64(rel.LeadLagMinutes))
	}
	return estimateDelay(corr)
}

func estimateDelay(corr float64) float64 {
	return math.Max(5, 60*(1-math.Abs(corr)))
}
