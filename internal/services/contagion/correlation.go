package contagion

import (
	"math"
	"sort"
	"time"

	"ContagionRadar/internal/domain/models"
	"ContagionRadar/internal/services/features"
)

// pairKey is the canonical (sorted) key of an unordered asset pair.
type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// correlationGraph is the sparse edge map plus a per-symbol adjacency index,
// so neighbor scans cost O(degree) instead of O(pairs).
type correlationGraph struct {
	edges     map[pairKey]*models.CorrelationEdge
	adjacency map[string]map[string]struct{}
}

func newCorrelationGraph() *correlationGraph {
	return &correlationGraph{
		edges:     make(map[pairKey]*models.CorrelationEdge),
		adjacency: make(map[string]map[string]struct{}),
	}
}

func (g *correlationGraph) get(x, y string) (*models.CorrelationEdge, bool) {
	e, ok := g.edges[newPairKey(x, y)]
	return e, ok
}

func (g *correlationGraph) put(edge models.CorrelationEdge) {
	g.edges[newPairKey(edge.AssetA, edge.AssetB)] = &edge
	g.link(edge.AssetA, edge.AssetB)
	g.link(edge.AssetB, edge.AssetA)
}

func (g *correlationGraph) link(from, to string) {
	n, ok := g.adjacency[from]
	if !ok {
		n = make(map[string]struct{})
		g.adjacency[from] = n
	}
	n[to] = struct{}{}
}

// remove deletes the edge for the pair and reports whether one existed.
func (g *correlationGraph) remove(x, y string) bool {
	k := newPairKey(x, y)
	if _, ok := g.edges[k]; !ok {
		return false
	}
	delete(g.edges, k)
	delete(g.adjacency[x], y)
	delete(g.adjacency[y], x)
	return true
}

// neighbors returns symbol's adjacent assets in sorted order.
func (g *correlationGraph) neighbors(symbol string) []string {
	n := g.adjacency[symbol]
	out := make([]string, 0, len(n))
	for s := range n {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// edgesOf returns copies of the edges touching symbol, ordered by neighbor.
func (g *correlationGraph) edgesOf(symbol string) []models.CorrelationEdge {
	names := g.neighbors(symbol)
	out := make([]models.CorrelationEdge, 0, len(names))
	for _, n := range names {
		if e, ok := g.get(symbol, n); ok {
			out = append(out, *e)
		}
	}
	return out
}

func (g *correlationGraph) len() int { return len(g.edges) }

func (g *correlationGraph) reset() {
	g.edges = make(map[pairKey]*models.CorrelationEdge)
	g.adjacency = make(map[string]map[string]struct{})
}

// alignedSeries holds the timestamp-aligned samples of a pair in canonical order.
type alignedSeries struct {
	sentA, sentB []float64
	volA, volB   []float64
	priceA       []float64
	priceB       []float64
}

// refreshCorrelations recomputes every edge between symbol and the other assets that
// have enough history, keeping only edges above the correlation threshold.
func (e *Engine) refreshCorrelations(symbol string) {
	if e.history.len(symbol) < e.cfg.MinHistorySize {
		return
	}
	for _, other := range e.history.all() {
		if other == symbol || e.history.len(other) < e.cfg.MinHistorySize {
			continue
		}
		edge, series, ok := e.correlate(symbol, other)
		if !ok || math.Abs(edge.Correlation) <= e.cfg.CorrelationThreshold {
			if e.graph.remove(symbol, other) {
				delete(e.relationships, newPairKey(symbol, other))
			}
			continue
		}
		e.graph.put(edge)
		e.refreshRelationship(edge, series)
	}
}

// correlate builds the edge for a pair. The pair is canonicalized first, so
// correlate(a, b) and correlate(b, a) are identical. ok is false when too few
// samples align.
func (e *Engine) correlate(x, y string) (models.CorrelationEdge, alignedSeries, bool) {
	k := newPairKey(x, y)
	ha, hb := e.history.get(k.a), e.history.get(k.b)
	pairs := features.AlignByTime(e.history.timestamps(k.a), e.history.timestamps(k.b), e.cfg.AlignmentTolerance)
	if len(pairs) < e.cfg.MinAlignedSamples {
		return models.CorrelationEdge{}, alignedSeries{}, false
	}

	s := alignedSeries{
		sentA: make([]float64, len(pairs)),
		sentB: make([]float64, len(pairs)),
		volA:  make([]float64, len(pairs)),
		volB:  make([]float64, len(pairs)),
	}
	for i, p := range pairs {
		oa, ob := ha[p.A], hb[p.B]
		s.sentA[i], s.sentB[i] = oa.Sentiment, ob.Sentiment
		s.volA[i], s.volB[i] = oa.Volume, ob.Volume
		if oa.HasPrice() && ob.HasPrice() {
			s.priceA = append(s.priceA, oa.PriceValue())
			s.priceB = append(s.priceB, ob.PriceValue())
		}
	}

	var priceCorr float64
	if len(s.priceA) >= e.cfg.MinAlignedSamples {
		priceCorr = features.Pearson(s.priceA, s.priceB)
	}
	candidates := []struct {
		kind models.SignalKind
		corr float64
	}{
		{models.SignalPrice, priceCorr},
		{models.SignalSentiment, features.Pearson(s.sentA, s.sentB)},
		{models.SignalVolume, features.Pearson(s.volA, s.volB)},
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if math.Abs(c.corr) > math.Abs(best.corr) {
			best = c
		}
	}

	dominant := best.kind
	if crossChain(e.history.chainOf(k.a), e.history.chainOf(k.b)) {
		dominant = models.SignalCrossChain
	}
	if sa := e.history.sectorOf(k.a); sa != "" && sa == e.history.sectorOf(k.b) {
		dominant = models.SignalSector
	}

	first, last := ha[pairs[0].A].Timestamp, ha[pairs[len(pairs)-1].A].Timestamp
	edge := models.CorrelationEdge{
		AssetA:         k.a,
		AssetB:         k.b,
		Correlation:    best.corr,
		DominantSignal: dominant,
		Strength:       models.ClassifyStrength(best.corr),
		WindowHours:    last.Sub(first).Hours(),
		Samples:        len(pairs),
		UpdatedAt:      latestTimestamp(ha[len(ha)-1].Timestamp, hb[len(hb)-1].Timestamp),
	}
	return edge, s, true
}

func latestTimestamp(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// sortEdges orders edges by signed correlation, highest first.
func sortEdges(edges []models.CorrelationEdge) {
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].Correlation > edges[j].Correlation
	})
}
