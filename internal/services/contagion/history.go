package contagion

import (
	"sort"
	"time"

	"ContagionRadar/internal/domain/models"
	"ContagionRadar/internal/services/features"
)

// trendWindow is the number of samples in each half of the recent-vs-prior comparison.
const trendWindow = 5

type assetMeta struct {
	chain  string
	sector string
}

// historyStore keeps a bounded FIFO series per symbol plus the latest known chain and sector.
type historyStore struct {
	limit   int
	series  map[string][]models.AssetObservation
	meta    map[string]assetMeta
	symbols []string // sorted
}

func newHistoryStore(limit int) *historyStore {
	return &historyStore{
		limit:  limit,
		series: make(map[string][]models.AssetObservation),
		meta:   make(map[string]assetMeta),
	}
}

// append stores obs and returns the resulting series length.
func (s *historyStore) append(obs models.AssetObservation) int {
	h, exists := s.series[obs.Symbol]
	if !exists {
		i := sort.SearchStrings(s.symbols, obs.Symbol)
		s.symbols = append(s.symbols, "")
		copy(s.symbols[i+1:], s.symbols[i:])
		s.symbols[i] = obs.Symbol
	}
	if len(h) >= s.limit {
		h = append(h[:0], h[len(h)-s.limit+1:]...)
	}
	h = append(h, obs)
	s.series[obs.Symbol] = h

	m := s.meta[obs.Symbol]
	if c := normalize(obs.Chain); c != "" {
		m.chain = c
	}
	if sec := normalize(obs.Sector); sec != "" {
		m.sector = sec
	}
	s.meta[obs.Symbol] = m
	return len(h)
}

func (s *historyStore) get(symbol string) []models.AssetObservation { return s.series[symbol] }

func (s *historyStore) len(symbol string) int { return len(s.series[symbol]) }

func (s *historyStore) chainOf(symbol string) string { return s.meta[symbol].chain }

func (s *historyStore) sectorOf(symbol string) string { return s.meta[symbol].sector }

// all returns every tracked symbol in sorted order. Callers must not mutate it.
func (s *historyStore) all() []string { return s.symbols }

func (s *historyStore) sentiments(symbol string) []float64 {
	h := s.series[symbol]
	out := make([]float64, len(h))
	for i, o := range h {
		out[i] = o.Sentiment
	}
	return out
}

func (s *historyStore) timestamps(symbol string) []time.Time {
	h := s.series[symbol]
	out := make([]time.Time, len(h))
	for i, o := range h {
		out[i] = o.Timestamp
	}
	return out
}

// trend is the recent sentiment delta; ok is false under 2*trendWindow samples.
func (s *historyStore) trend(symbol string) (float64, bool) {
	return features.WindowDelta(s.sentiments(symbol), trendWindow)
}

func (s *historyStore) snapshot(symbol string) []models.AssetObservation {
	h := s.series[symbol]
	out := make([]models.AssetObservation, len(h))
	copy(out, h)
	return out
}

func (s *historyStore) reset() {
	s.series = make(map[string][]models.AssetObservation)
	s.meta = make(map[string]assetMeta)
	s.symbols = nil
}
