package contagion

import (
	"math"
	"sort"
	"time"

	"ContagionRadar/internal/domain/models"

	"github.com/google/uuid"
)

const (
	// minMomentumSamples is the history an asset needs before it counts toward sector momentum.
	minMomentumSamples = 2 * trendWindow

	relatedRotationHours   = 24
	unrelatedRotationHours = 48
	maxRotationHours       = 168
)

type sectorMomentum struct {
	value  float64
	assets []string
}

// sectorMomenta averages the recent sentiment delta of every sector's eligible assets.
func (e *Engine) sectorMomenta() map[string]sectorMomentum {
	sums := make(map[string]float64)
	members := make(map[string][]string)
	for _, sym := range e.history.all() {
		sector := e.history.sectorOf(sym)
		if sector == "" || e.history.len(sym) < minMomentumSamples {
			continue
		}
		d, ok := e.history.trend(sym)
		if !ok {
			continue
		}
		sums[sector] += d
		members[sector] = append(members[sector], sym)
	}
	out := make(map[string]sectorMomentum, len(sums))
	for sector, sum := range sums {
		out[sector] = sectorMomentum{value: sum / float64(len(members[sector])), assets: members[sector]}
	}
	return out
}

// detectRotation looks for one sector losing momentum while another gains.
func (e *Engine) detectRotation(at time.Time) (*models.SectorRotation, bool) {
	th := e.cfg.SectorRotationThreshold
	momenta := e.sectorMomenta()
	sectors := make([]string, 0, len(momenta))
	for s := range momenta {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	var from, to string
	bestGap := 0.0
	for _, f := range sectors {
		if momenta[f].value >= -th {
			continue
		}
		for _, t := range sectors {
			if momenta[t].value <= th {
				continue
			}
			if gap := momenta[t].value - momenta[f].value; gap > bestGap {
				bestGap, from, to = gap, f, t
			}
		}
	}
	if from == "" || bestGap <= 2*th {
		return nil, false
	}
	if e.rotationCoolingDown(from, to, at) {
		return nil, false
	}

	assets := append(append([]string{}, momenta[from].assets...), momenta[to].assets...)
	sort.Strings(assets)
	return &models.SectorRotation{
		ID:                    uuid.NewString(),
		FromSector:            from,
		ToSector:              to,
		Timestamp:             at,
		Strength:              math.Min(1, bestGap/2),
		DurationHoursEstimate: e.rotationDuration(from, to),
		Assets:                assets,
	}, true
}

func (e *Engine) rotationCoolingDown(from, to string, at time.Time) bool {
	if e.cfg.RotationCooldown <= 0 {
		return false
	}
	for i := len(e.rotations) - 1; i >= 0; i-- {
		r := e.rotations[i]
		if r.FromSector == from && r.ToSector == to {
			return at.Sub(r.Timestamp) < e.cfg.RotationCooldown
		}
	}
	return false
}

// rotationDuration estimates how long a from→to rotation lasts. A past rotation
// into to ends when a later rotation moves out of to; the estimate averages
// those observed lifetimes. Pairs with no completed rotation fall back to the
// related or unrelated sector default.
func (e *Engine) rotationDuration(from, to string) float64 {
	total, n := 0.0, 0
	for i, r := range e.rotations {
		if r.FromSector != from || r.ToSector != to {
			continue
		}
		for _, next := range e.rotations[i+1:] {
			if next.FromSector == to {
				total += next.Timestamp.Sub(r.Timestamp).Hours()
				n++
				break
			}
		}
	}
	switch {
	case n > 0:
		return math.Max(1, math.Min(maxRotationHours, total/float64(n)))
	case sectorsRelated(from, to):
		return relatedRotationHours
	default:
		return unrelatedRotationHours
	}
}
