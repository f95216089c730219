package usecase

import (
	"strings"
	"sync"
	"time"

	"ContagionRadar/internal/domain/models"
	drepo "ContagionRadar/internal/domain/repository"
	"ContagionRadar/internal/services/contagion"
)

// ContagionService serializes access to the engine. Every call takes the same
// lock, so subscribers run while it is held and must not call back in.
type ContagionService struct {
	mu      sync.Mutex
	engine  *contagion.Engine
	metrics drepo.Metrics
}

func NewContagionService(engine *contagion.Engine, metrics drepo.Metrics) *ContagionService {
	return &ContagionService{engine: engine, metrics: metrics}
}

// Record feeds one observation into the engine.
func (s *ContagionService) Record(obs models.AssetObservation) error {
	start := time.Now()
	s.mu.Lock()
	err := s.engine.Record(obs)
	stats := s.engine.Stats()
	s.mu.Unlock()

	if err != nil {
		s.metrics.RecordError("engine_record")
		return err
	}
	s.metrics.RecordLatency("engine_record", time.Since(start).Seconds())
	s.metrics.SetEngineStats(stats)
	return nil
}

// Replay rebuilds state from observations without notifying subscribers.
func (s *ContagionService) Replay(observations []models.AssetObservation) int {
	s.mu.Lock()
	n := s.engine.Replay(observations)
	stats := s.engine.Stats()
	s.mu.Unlock()

	s.metrics.SetEngineStats(stats)
	return n
}

// Subscribe registers sub on the engine; the returned func removes it.
func (s *ContagionService) Subscribe(sub contagion.Subscriber) func() {
	s.mu.Lock()
	unsubscribe := s.engine.Subscribe(sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		unsubscribe()
	}
}

func (s *ContagionService) ContagionHistory(limit int) []models.ContagionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ContagionHistory(limit)
}

func (s *ContagionService) Correlations(asset string) []models.CorrelationEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Correlations(asset)
}

func (s *ContagionService) Relationship(a, b string) (models.AssetRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.engine.Relationship(a, b)
	if !ok {
		return models.AssetRelationship{}, models.ErrNotFound
	}
	return rel, nil
}

// ChainMetrics returns one chain, or every tracked chain when chain is blank.
func (s *ContagionService) ChainMetrics(chain string) ([]models.ChainMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(chain) == "" {
		return s.engine.AllChainMetrics(), nil
	}
	m, ok := s.engine.ChainMetrics(chain)
	if !ok {
		return nil, models.ErrNotFound
	}
	return []models.ChainMetrics{m}, nil
}

func (s *ContagionService) SectorRotations(limit int) []models.SectorRotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.SectorRotations(limit)
}

func (s *ContagionService) History(symbol string) []models.AssetObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.History(symbol)
}

func (s *ContagionService) Stats() models.EngineStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Stats()
}

func (s *ContagionService) Reset() {
	s.mu.Lock()
	s.engine.Reset()
	stats := s.engine.Stats()
	s.mu.Unlock()

	s.metrics.SetEngineStats(stats)
}
