package contagion

import (
	"math"
	"sort"
	"time"

	"ContagionRadar/internal/domain/models"
	"ContagionRadar/internal/services/features"
)

// maxChainEpisodes bounds the per-chain episode log regardless of the window.
const maxChainEpisodes = 100

type chainEpisode struct {
	at    time.Time
	delay float64
}

// chainTracker keeps rolling per-chain metrics. Chains are never pruned.
type chainTracker struct {
	metrics  map[string]*models.ChainMetrics
	assets   map[string]map[string]struct{}
	memberOf map[string]string
	episodes map[string][]chainEpisode
}

func newChainTracker() *chainTracker {
	t := &chainTracker{}
	t.reset()
	return t
}

func (t *chainTracker) entry(chain string) *models.ChainMetrics {
	m, ok := t.metrics[chain]
	if !ok {
		m = &models.ChainMetrics{Chain: chain}
		t.metrics[chain] = m
		t.assets[chain] = make(map[string]struct{})
	}
	return m
}

func (t *chainTracker) susceptibility(chain string) float64 {
	if m, ok := t.metrics[chain]; ok {
		return m.ContagionSusceptibility
	}
	return 0
}

func (t *chainTracker) reset() {
	t.metrics = make(map[string]*models.ChainMetrics)
	t.assets = make(map[string]map[string]struct{})
	t.memberOf = make(map[string]string)
	t.episodes = make(map[string][]chainEpisode)
}

// refreshChainMetrics updates membership and momentum for symbol's chain and ages out
// contagion episodes that fell outside the window. An asset that reports a new chain
// leaves its previous one.
func (e *Engine) refreshChainMetrics(symbol string, at time.Time) {
	chain := e.history.chainOf(symbol)
	if chain == "" {
		return
	}
	if prev, ok := e.chains.memberOf[symbol]; ok && prev != chain {
		delete(e.chains.assets[prev], symbol)
		e.refreshMembership(prev)
	}
	e.chains.entry(chain)
	e.chains.assets[chain][symbol] = struct{}{}
	e.chains.memberOf[symbol] = chain
	e.refreshMembership(chain)
	e.recomputeSusceptibility(chain, at)
}

func (e *Engine) refreshMembership(chain string) {
	m := e.chains.entry(chain)
	m.TrackedAssets = len(e.chains.assets[chain])

	var deltas []float64
	for sym := range e.chains.assets[chain] {
		if d, ok := e.history.trend(sym); ok {
			deltas = append(deltas, d)
		}
	}
	m.SentimentMomentum = features.Mean(deltas)
}

// recordChainEpisodes logs one episode per affected asset on its chain.
func (e *Engine) recordChainEpisodes(event models.ContagionEvent) {
	touched := make(map[string]bool)
	for _, a := range event.AffectedAssets {
		if a.Chain == "" {
			continue
		}
		e.chains.entry(a.Chain)
		eps := append(e.chains.episodes[a.Chain], chainEpisode{at: event.Timestamp, delay: a.DelayMinutes})
		if len(eps) > maxChainEpisodes {
			eps = eps[len(eps)-maxChainEpisodes:]
		}
		e.chains.episodes[a.Chain] = eps
		touched[a.Chain] = true
	}
	for chain := range touched {
		e.recomputeSusceptibility(chain, event.Timestamp)
	}
}

// recomputeSusceptibility scores a chain by episode frequency (60%) and spread speed (40%).
func (e *Engine) recomputeSusceptibility(chain string, at time.Time) {
	m := e.chains.entry(chain)
	eps := e.chains.episodes[chain]
	kept := eps[:0]
	for _, ep := range eps {
		if at.Sub(ep.at) <= e.cfg.ContagionWindow {
			kept = append(kept, ep)
		}
	}
	e.chains.episodes[chain] = kept

	m.RecentContagionCount = len(kept)
	m.UpdatedAt = at
	if len(kept) == 0 {
		m.AverageSpreadMinutes = 0
		m.ContagionSusceptibility = 0
		return
	}
	total := 0.0
	for _, ep := range kept {
		total += ep.delay
	}
	m.AverageSpreadMinutes = total / float64(len(kept))
	freq := math.Min(1, float64(len(kept))/10)
	speed := math.Max(0, 1-m.AverageSpreadMinutes/60)
	m.ContagionSusceptibility = clamp01(0.6*freq + 0.4*speed)
}

func (t *chainTracker) all() []models.ChainMetrics {
	out := make([]models.ChainMetrics, 0, len(t.metrics))
	for _, m := range t.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out
}
