package repository

import (
	"context"
	"time"

	"ContagionRadar/internal/domain/models"
)

// ObservationStream is a live source of asset observations (e.g. a WebSocket feed).
type ObservationStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.AssetObservation, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalSink receives engine output after it left the engine goroutine.
type SignalSink interface {
	Name() string
	PublishContagion(ctx context.Context, sig models.ContagionSignal) error
	PublishRotation(ctx context.Context, rot models.SectorRotation) error
}

// ObservationArchive persists raw observations and emitted events so engine state
// can be rebuilt by replay.
type ObservationArchive interface {
	Init(ctx context.Context) error
	StoreObservation(ctx context.Context, obs models.AssetObservation) error
	StoreObservations(ctx context.Context, batch []models.AssetObservation) error
	StoreEvent(ctx context.Context, sig models.ContagionSignal) error
	StoreRotation(ctx context.Context, rot models.SectorRotation) error
	LoadSince(ctx context.Context, since time.Time, limit int) ([]models.AssetObservation, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotStore keeps the latest signal per origin and the latest rotation.
type SnapshotStore interface {
	LatestSignal(ctx context.Context, origin string) (*models.ContagionSignal, error)
	LatestRotation(ctx context.Context) (*models.SectorRotation, error)
	LatestSignals(ctx context.Context) ([]models.ContagionSignal, error)
	Clear(ctx context.Context) error
}

type Metrics interface {
	RecordObservation(source string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordSignal(kind, severity string)
	SetEngineStats(stats models.EngineStats)
	SetQueueDepth(name string, depth int)
}
