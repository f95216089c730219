package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ContagionRadar/internal/domain/models"
	drepo "ContagionRadar/internal/domain/repository"
	applogger "ContagionRadar/pkg/logger"
)

type sourceKey struct{}

// WithSource tags ctx with the ingestion source reported in metrics.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the ingestion source carried by ctx, or "unknown".
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// ObservationProcessor records observations into the engine and archives
// accepted ones in batches. Archive failures are logged and counted; they never
// feed back into the engine.
type ObservationProcessor struct {
	svc     *ContagionService
	archive drepo.ObservationArchive
	metrics drepo.Metrics
	l       *applogger.Logger

	batchSz int
	batchTO time.Duration
	pending chan models.AssetObservation

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewObservationProcessor creates a processor. archive may be nil.
func NewObservationProcessor(
	svc *ContagionService,
	archive drepo.ObservationArchive,
	metrics drepo.Metrics,
	l *applogger.Logger,
	batchSz int,
	batchTO time.Duration,
) *ObservationProcessor {
	if l == nil {
		l = applogger.Nop()
	}
	if batchSz <= 0 {
		batchSz = 500
	}
	if batchTO <= 0 {
		batchTO = 2 * time.Second
	}
	return &ObservationProcessor{
		svc:     svc,
		archive: archive,
		metrics: metrics,
		l:       l.With(applogger.String("component", "observation_processor")),
		batchSz: batchSz,
		batchTO: batchTO,
		pending: make(chan models.AssetObservation, batchSz*4),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Process records a single observation.
func (p *ObservationProcessor) Process(ctx context.Context, obs *models.AssetObservation) error {
	if obs == nil {
		return fmt.Errorf("observation is nil")
	}
	if err := p.svc.Record(*obs); err != nil {
		return fmt.Errorf("process observation: %w", err)
	}
	p.metrics.RecordObservation(SourceFrom(ctx))

	if p.archive == nil {
		return nil
	}
	select {
	case p.pending <- *obs:
	default:
		p.metrics.RecordError("archive_buffer_full")
	}
	return nil
}

// Start launches the archive flusher. It is a no-op without an archive.
func (p *ObservationProcessor) Start(ctx context.Context) {
	if p.archive == nil {
		return
	}
	p.startOnce.Do(func() {
		p.started.Store(true)
		go p.flushLoop(ctx)
	})
}

func (p *ObservationProcessor) flushLoop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.batchTO)
	defer ticker.Stop()

	batch := make([]models.AssetObservation, 0, p.batchSz)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// the batch must land even while the service is shutting down
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		err := p.archive.StoreObservations(fctx, batch)
		cancel()
		if err != nil {
			p.metrics.RecordError("archive_store")
			p.l.Error("archive batch failed",
				applogger.Int("rows", len(batch)),
				applogger.Error(err),
			)
		} else {
			p.metrics.RecordLatency("archive_store", time.Since(start).Seconds())
		}
		batch = batch[:0]
	}

	for {
		select {
		case obs := <-p.pending:
			batch = append(batch, obs)
			if len(batch) >= p.batchSz {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-p.stopCh:
			for {
				select {
				case obs := <-p.pending:
					batch = append(batch, obs)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes pending archive rows and stops the flusher.
func (p *ObservationProcessor) Close(ctx context.Context) error {
	if !p.started.Load() {
		return nil
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
