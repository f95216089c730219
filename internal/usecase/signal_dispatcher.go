package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ContagionRadar/internal/domain/models"
	drepo "ContagionRadar/internal/domain/repository"
	"ContagionRadar/internal/services/contagion"
	applogger "ContagionRadar/pkg/logger"
)

type dispatchItem struct {
	signal   *models.ContagionSignal
	rotation *models.SectorRotation
}

// SignalDispatcher is an engine subscriber that moves output off the engine
// goroutine. Items are queued without blocking and fanned out to every sink in
// emission order by a single background goroutine; a full queue drops the item.
type SignalDispatcher struct {
	sinks   []drepo.SignalSink
	metrics drepo.Metrics
	l       *applogger.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan dispatchItem
	dropped atomic.Int64

	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
}

var _ contagion.Subscriber = (*SignalDispatcher)(nil)

func NewSignalDispatcher(sinks []drepo.SignalSink, metrics drepo.Metrics, l *applogger.Logger, bufferSize int, timeout time.Duration) *SignalDispatcher {
	if l == nil {
		l = applogger.Nop()
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	filtered := make([]drepo.SignalSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &SignalDispatcher{
		sinks:   filtered,
		metrics: metrics,
		l:       l.With(applogger.String("component", "signal_dispatcher")),
		timeout: timeout,
		queue:   make(chan dispatchItem, bufferSize),
		done:    make(chan struct{}),
	}
}

func (d *SignalDispatcher) OnContagion(sig models.ContagionSignal) {
	d.metrics.RecordSignal("contagion", string(sig.Severity))
	d.enqueue(dispatchItem{signal: &sig})
}

func (d *SignalDispatcher) OnSectorRotation(rot models.SectorRotation) {
	d.metrics.RecordSignal("sector_rotation", "none")
	d.enqueue(dispatchItem{rotation: &rot})
}

func (d *SignalDispatcher) enqueue(item dispatchItem) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop()
		return
	}
	select {
	case d.queue <- item:
		d.metrics.SetQueueDepth("dispatcher", len(d.queue))
	default:
		d.drop()
	}
}

func (d *SignalDispatcher) drop() {
	n := d.dropped.Add(1)
	d.metrics.RecordError("dispatcher_drop")
	if n == 1 || n%100 == 0 {
		d.l.Warn("dispatcher queue full, dropping output", applogger.Int64("dropped_total", n))
	}
}

// Dropped returns how many items were dropped so far.
func (d *SignalDispatcher) Dropped() int64 { return d.dropped.Load() }

// Start launches the fan-out goroutine.
func (d *SignalDispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.started.Store(true)
		go d.run(context.WithoutCancel(ctx))
	})
}

func (d *SignalDispatcher) run(ctx context.Context) {
	defer close(d.done)
	for item := range d.queue {
		d.metrics.SetQueueDepth("dispatcher", len(d.queue))
		for _, sink := range d.sinks {
			d.deliver(ctx, sink, item)
		}
	}
}

func (d *SignalDispatcher) deliver(ctx context.Context, sink drepo.SignalSink, item dispatchItem) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sink panic: %v", r)
			}
		}()
		if item.signal != nil {
			err = sink.PublishContagion(ctx, *item.signal)
		} else {
			err = sink.PublishRotation(ctx, *item.rotation)
		}
	}()
	if err != nil {
		d.metrics.RecordError("sink_" + sink.Name())
		d.l.Error("sink publish failed",
			applogger.String("sink", sink.Name()),
			applogger.Error(err),
		)
		return
	}
	d.metrics.RecordLatency("sink_"+sink.Name(), time.Since(start).Seconds())
}

// Stop closes the queue and waits until queued items are delivered or ctx ends.
func (d *SignalDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	if !d.started.Load() {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
