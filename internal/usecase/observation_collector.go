package usecase

import (
	"context"
	"errors"

	"ContagionRadar/internal/domain/models"
	drepo "ContagionRadar/internal/domain/repository"
	mid "ContagionRadar/internal/middleware"
	applogger "ContagionRadar/pkg/logger"
)

var errStreamClosed = errors.New("observation stream closed")

// ObservationCollector drives a live observation stream into the ingest pipeline.
type ObservationCollector struct {
	stream  drepo.ObservationStream
	pipe    *mid.IngestPipeline
	metrics drepo.Metrics
	l       *applogger.Logger
	done    chan struct{}
}

func NewObservationCollector(stream drepo.ObservationStream, pipe *mid.IngestPipeline, metrics drepo.Metrics, l *applogger.Logger) *ObservationCollector {
	if l == nil {
		l = applogger.Nop()
	}
	return &ObservationCollector{
		stream:  stream,
		pipe:    pipe,
		metrics: metrics,
		l:       l.With(applogger.String("component", "observation_collector")),
		done:    make(chan struct{}),
	}
}

// IsConnected returns true if the stream is connected.
func (c *ObservationCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *ObservationCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	go c.run(WithSource(ctx, "feed"))
	return nil
}

// run reads one connection at a time and reconnects when it fails.
func (c *ObservationCollector) run(ctx context.Context) {
	defer close(c.done)
	for {
		obsCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, obsCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.l.Warn("stream closed, reconnecting", applogger.Error(err))
		for {
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.metrics.RecordError("stream_reconnect")
			c.l.Error("reconnect failed", applogger.Error(rerr))
		}
	}
}

// consume forwards observations until the stream closes and returns its error.
func (c *ObservationCollector) consume(ctx context.Context, obsCh <-chan *models.AssetObservation, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obs, ok := <-obsCh:
			if !ok {
				err := <-errCh
				if err == nil {
					err = errStreamClosed
				}
				return err
			}
			if obs == nil {
				continue
			}
			if err := c.pipe.Process(ctx, obs); err != nil {
				c.l.Debug("observation not recorded",
					applogger.String("symbol", obs.Symbol),
					applogger.Error(err),
				)
			}
		}
	}
}

// Done is closed once the consume loop exits.
func (c *ObservationCollector) Done() <-chan struct{} { return c.done }

func (c *ObservationCollector) Stop() error { return c.stream.Close() }
