package middleware

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"ContagionRadar/internal/domain/models"
	domrepo "ContagionRadar/internal/domain/repository"
	"ContagionRadar/internal/service/ratelimit"
	applogger "ContagionRadar/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, obs *models.AssetObservation) error
}

// IngestPipeline sits between the observation sources and the engine.
// It validates, normalizes and throttles observations and forwards them
// synchronously, so each symbol reaches the engine in arrival order.
type IngestPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	l       *applogger.Logger

	maxRPS    int
	throttle  *ratelimit.Limiter
	transform func(*models.AssetObservation) *models.AssetObservation
	now       func() time.Time

	mu      sync.Mutex
	stopped bool
}

type PipelineOption func(*IngestPipeline)

// WithMaxRPS sets the max observations per second per symbol. 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithTransform replaces the default normalization hook.
func WithTransform(fn func(*models.AssetObservation) *models.AssetObservation) PipelineOption {
	return func(p *IngestPipeline) { p.transform = fn }
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *IngestPipeline) {
		if l != nil {
			p.l = l
		}
	}
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		proc:      proc,
		metrics:   metrics,
		l:         applogger.Nop(),
		maxRPS:    200,
		transform: Normalize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxRPS > 0 {
		p.throttle = ratelimit.New(float64(p.maxRPS), p.maxRPS)
	}
	p.l = p.l.With(applogger.String("component", "ingest_pipeline"))
	return p
}

// Stop makes later calls to Process fail with models.ErrPipelineStopped.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// Process validates, throttles and forwards obs downstream. An observation over
// the per-symbol rate fails with models.ErrThrottled and is not recorded.
func (p *IngestPipeline) Process(ctx context.Context, obs *models.AssetObservation) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return models.ErrPipelineStopped
	}

	start := p.now()
	if obs != nil && p.transform != nil {
		obs = p.transform(obs)
	}
	if err := ValidateObservation(obs); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = start.UTC()
	}
	if p.throttle != nil && !p.throttle.Allow(obs.Symbol) {
		p.metrics.RecordError("pipeline_throttle")
		return fmt.Errorf("%w: %s over %d/s", models.ErrThrottled, obs.Symbol, p.maxRPS)
	}

	if err := p.proc.Process(ctx, obs); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.l.Warn("observation not processed", applogger.String("symbol", obs.Symbol), applogger.Error(err))
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// Normalize trims the identifiers, upper-cases the symbol and lower-cases
// chain and sector.
func Normalize(obs *models.AssetObservation) *models.AssetObservation {
	out := *obs
	out.Symbol = strings.ToUpper(strings.TrimSpace(obs.Symbol))
	out.Chain = strings.ToLower(strings.TrimSpace(obs.Chain))
	out.Sector = strings.ToLower(strings.TrimSpace(obs.Sector))
	return &out
}

// ValidateObservation rejects observations the engine cannot use.
// Out-of-range sentiment is accepted.
func ValidateObservation(obs *models.AssetObservation) error {
	if obs == nil {
		return fmt.Errorf("%w: nil", models.ErrInvalidObservation)
	}
	if strings.TrimSpace(obs.Symbol) == "" {
		return models.ErrEmptySymbol
	}
	if math.IsNaN(obs.Sentiment) || math.IsInf(obs.Sentiment, 0) {
		return fmt.Errorf("%w: sentiment not finite", models.ErrInvalidObservation)
	}
	if obs.Volume < 0 || math.IsNaN(obs.Volume) {
		return fmt.Errorf("%w: negative volume", models.ErrInvalidObservation)
	}
	if obs.Price != nil && (*obs.Price < 0 || math.IsNaN(*obs.Price)) {
		return fmt.Errorf("%w: negative price", models.ErrInvalidObservation)
	}
	return nil
}
