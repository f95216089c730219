package contagion

import (
	"math/rand"
	"strings"

	"ContagionRadar/internal/domain/models"
	applogger "ContagionRadar/pkg/logger"

	"github.com/creasty/defaults"
)

// Engine tracks cross-asset sentiment, maintains the correlation graph and emits
// contagion signals and sector rotations. It is not safe for concurrent use; callers
// drive it from a single goroutine or behind their own lock.
type Engine struct {
	cfg    Config
	logger *applogger.Logger
	rand   RandSource

	history       *historyStore
	graph         *correlationGraph
	relationships map[pairKey]*models.AssetRelationship
	chains        *chainTracker
	contagions    []models.ContagionEvent
	rotations     []models.SectorRotation

	subs      []subscription
	nextSubID int
	muted     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandSource sets the random source used by stochastic admission.
func WithRandSource(r RandSource) Option {
	return func(e *Engine) {
		e.rand = r
	}
}

// WithLogger sets the logger used for recovered subscriber panics.
func WithLogger(l *applogger.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine. Zero-valued config fields take their defaults.
func New(cfg Config, opts ...Option) *Engine {
	_ = defaults.Set(&cfg)
	e := &Engine{
		cfg:           cfg,
		history:       newHistoryStore(cfg.HistorySize),
		graph:         newCorrelationGraph(),
		relationships: make(map[pairKey]*models.AssetRelationship),
		chains:        newChainTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rand == nil {
		e.rand = rand.New(rand.NewSource(cfg.RandomSeed))
	}
	return e
}

// Record ingests one observation and runs every downstream detector for its symbol.
// Signals and rotations are delivered to subscribers before Record returns.
func (e *Engine) Record(obs models.AssetObservation) error {
	obs.Symbol = strings.TrimSpace(obs.Symbol)
	if obs.Symbol == "" {
		return models.ErrEmptySymbol
	}

	n := e.history.append(obs)
	e.refreshCorrelations(obs.Symbol)
	e.refreshChainMetrics(obs.Symbol, obs.Timestamp)
	if n < e.cfg.MinHistorySize {
		return nil
	}

	rotation, rotated := e.detectRotation(obs.Timestamp)
	if rotated {
		e.pushRotation(*rotation)
		e.emitRotation(*rotation)
	}

	event, ok := e.detectContagion(obs)
	if !ok {
		return nil
	}
	predictions := e.predict(*event)
	e.recordChainEpisodes(*event)
	e.pushContagion(*event)

	var attached *models.SectorRotation
	if rotated {
		attached = rotation
	}
	e.emitContagion(e.assembleSignal(*event, predictions, attached))
	return nil
}

// Replay records observations without notifying subscribers and returns how many
// were accepted.
func (e *Engine) Replay(observations []models.AssetObservation) int {
	e.muted = true
	defer func() { e.muted = false }()

	accepted := 0
	for _, obs := range observations {
		if err := e.Record(obs); err == nil {
			accepted++
		}
	}
	return accepted
}

func (e *Engine) pushContagion(ev models.ContagionEvent) {
	e.contagions = append(e.contagions, ev)
	if over := len(e.contagions) - e.cfg.MaxContagionHistory; over > 0 {
		e.contagions = append(e.contagions[:0], e.contagions[over:]...)
	}
}

func (e *Engine) pushRotation(r models.SectorRotation) {
	e.rotations = append(e.rotations, r)
	if over := len(e.rotations) - e.cfg.MaxRotationHistory; over > 0 {
		e.rotations = append(e.rotations[:0], e.rotations[over:]...)
	}
}

// ContagionHistory returns up to limit recent events, newest first. limit <= 0 returns all.
func (e *Engine) ContagionHistory(limit int) []models.ContagionEvent {
	n := len(e.contagions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.ContagionEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.contagions[i])
	}
	return out
}

// SectorRotations returns up to limit recent rotations, newest first. limit <= 0 returns all.
func (e *Engine) SectorRotations(limit int) []models.SectorRotation {
	n := len(e.rotations)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.SectorRotation, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, e.rotations[i])
	}
	return out
}

// Correlations returns the edges touching asset, strongest positive first.
func (e *Engine) Correlations(asset string) []models.CorrelationEdge {
	edges := e.graph.edgesOf(strings.TrimSpace(asset))
	sortEdges(edges)
	return edges
}

// Relationship returns the tracked relationship of a pair with bridges recomputed
// against the current graph.
func (e *Engine) Relationship(a, b string) (models.AssetRelationship, bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	rel, ok := e.relationships[newPairKey(a, b)]
	if !ok {
		return models.AssetRelationship{}, false
	}
	out := *rel
	out.SharedSectors = append([]string{}, rel.SharedSectors...)
	out.BridgeAssets = e.bridgeAssets(rel.AssetA, rel.AssetB)
	return out, true
}

// ChainMetrics returns the metrics of one chain. Chain names are case-insensitive.
func (e *Engine) ChainMetrics(chain string) (models.ChainMetrics, bool) {
	m, ok := e.chains.metrics[normalize(chain)]
	if !ok {
		return models.ChainMetrics{}, false
	}
	return *m, true
}

// AllChainMetrics returns every tracked chain, sorted by name.
func (e *Engine) AllChainMetrics() []models.ChainMetrics {
	return e.chains.all()
}

// History returns a copy of the observation history of symbol.
func (e *Engine) History(symbol string) []models.AssetObservation {
	return e.history.snapshot(strings.TrimSpace(symbol))
}

func (e *Engine) Stats() models.EngineStats {
	return models.EngineStats{
		TrackedAssets:    len(e.history.all()),
		CorrelationEdges: e.graph.len(),
		ContagionEvents:  len(e.contagions),
		SectorRotations:  len(e.rotations),
		TrackedChains:    len(e.chains.metrics),
	}
}

func (e *Engine) Config() Config { return e.cfg }

// Reset drops all tracked state. Subscribers stay registered.
func (e *Engine) Reset() {
	e.history.reset()
	e.graph.reset()
	e.relationships = make(map[pairKey]*models.AssetRelationship)
	e.chains.reset()
	e.contagions = nil
	e.rotations = nil
}
