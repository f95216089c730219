package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"ContagionRadar/internal/domain/models"
)

type fakeMetrics struct {
	mu           sync.Mutex
	observations map[string]int
	errors       map[string]int
	signals      map[string]int
	stats        models.EngineStats
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		observations: make(map[string]int),
		errors:       make(map[string]int),
		signals:      make(map[string]int),
	}
}

func (m *fakeMetrics) RecordObservation(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations[source]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func (m *fakeMetrics) RecordSignal(kind, severity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[kind]++
}

func (m *fakeMetrics) SetEngineStats(s models.EngineStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = s
}

func (m *fakeMetrics) SetQueueDepth(string, int) {}

func (m *fakeMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func (m *fakeMetrics) observationCount(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.observations[source]
}

type fakeArchive struct {
	mu       sync.Mutex
	batches  [][]models.AssetObservation
	loadArgs struct {
		since time.Time
		limit int
	}
	stored []models.AssetObservation
	err    error
}

func (a *fakeArchive) Init(context.Context) error { return nil }
func (a *fakeArchive) StoreObservation(_ context.Context, o models.AssetObservation) error {
	return a.StoreObservations(context.Background(), []models.AssetObservation{o})
}
func (a *fakeArchive) StoreObservations(_ context.Context, batch []models.AssetObservation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.batches = append(a.batches, append([]models.AssetObservation(nil), batch...))
	return nil
}
func (a *fakeArchive) StoreEvent(context.Context, models.ContagionSignal) error    { return nil }
func (a *fakeArchive) StoreRotation(context.Context, models.SectorRotation) error { return nil }
func (a *fakeArchive) LoadSince(_ context.Context, since time.Time, limit int) ([]models.AssetObservation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loadArgs.since = since
	a.loadArgs.limit = limit
	return a.stored, a.err
}
func (a *fakeArchive) Health(context.Context) error { return nil }
func (a *fakeArchive) Close() error                 { return nil }

func (a *fakeArchive) rows() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, b := range a.batches {
		n += len(b)
	}
	return n
}

type fakeSink struct {
	name string
	mu   sync.Mutex
	ids  []string
	err  error
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) PublishContagion(_ context.Context, sig models.ContagionSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, sig.Event.ID)
	return s.err
}

func (s *fakeSink) PublishRotation(_ context.Context, rot models.SectorRotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, rot.ID)
	return s.err
}

func (s *fakeSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

var errBoom = errors.New("boom")

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time { return t0.Add(time.Duration(i) * 5 * time.Minute) }

// jump is a small wiggle with a +0.6 step from index 25.
func jump(i int) float64 {
	w := 0.01 * math.Sin(1.3*float64(i))
	if i >= 25 {
		return w + 0.6
	}
	return w
}

// contagionScenario returns two assets whose sentiment jumps together, which
// makes the second asset emit contagion signals.
func contagionScenario() []models.AssetObservation {
	var out []models.AssetObservation
	for _, sym := range []string{"B", "A"} {
		for i := 0; i < 30; i++ {
			out = append(out, models.AssetObservation{
				Symbol:    sym,
				Timestamp: at(i),
				Sentiment: jump(i),
				Volume:    1000 + 10*float64(i),
			})
		}
	}
	return out
}
