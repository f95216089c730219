package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "ContagionRadar/internal/middleware"
	"ContagionRadar/internal/usecase"
	"ContagionRadar/pkg/config"
	xhttp "ContagionRadar/pkg/http"
	pkgkafka "ContagionRadar/pkg/kafka"
	applogger "ContagionRadar/pkg/logger"
	"ContagionRadar/pkg/queue"
)

// closer is an infrastructure client released after every worker stopped.
type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	svc        *usecase.ContagionService
	processor  *usecase.ObservationProcessor
	pipeline   *mid.IngestPipeline
	dispatcher *usecase.SignalDispatcher
	httpServer *xhttp.Server

	collector  *usecase.ObservationCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	alertQueue *queue.RedisQueue
	replay     *usecase.ReplayUseCase
	closers    []closer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	svc *usecase.ContagionService,
	processor *usecase.ObservationProcessor,
	pipeline *mid.IngestPipeline,
	dispatcher *usecase.SignalDispatcher,
	httpServer *xhttp.Server,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log.With(applogger.String("component", "app")),
		svc:        svc,
		processor:  processor,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		httpServer: httpServer,
	}
}

// SetCollector attaches the websocket feed collector.
func (a *App) SetCollector(c *usecase.ObservationCollector) { a.collector = c }

// SetConsumer attaches a Kafka consumer and the handler it runs.
func (a *App) SetConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = kh
}

// SetAlertQueue attaches the redis queue delivering webhook alerts.
func (a *App) SetAlertQueue(q *queue.RedisQueue) { a.alertQueue = q }

// SetReplay attaches the startup replay from the archive.
func (a *App) SetReplay(r *usecase.ReplayUseCase) { a.replay = r }

// AddCloser registers fn to run on shutdown. Closers run in reverse order.
func (a *App) AddCloser(name string, fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, closer{name: name, fn: fn})
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		a.shutdown(ctx)
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))
	a.shutdown(ctx)
	return nil
}

// Start brings the engine up to date and launches every worker.
func (a *App) Start(ctx context.Context) error {
	// Replay runs before any live source so the engine sees history first.
	if a.replay != nil {
		n, err := a.replay.Run(ctx)
		if err != nil {
			a.log.Warn("startup replay failed", applogger.Error(err))
		} else {
			a.log.Info("startup replay done", applogger.Int("observations", n))
		}
	}

	a.dispatcher.Start(ctx)
	a.processor.Start(ctx)

	if a.alertQueue != nil {
		if err := a.alertQueue.Start(); err != nil {
			a.log.Error("alert queue start failed", applogger.Error(err))
			return err
		}
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			// the collector retries on its own only once connected
			a.log.Error("feed collector start failed", applogger.Error(err))
		} else {
			a.log.Info("feed collector started", applogger.Strings("symbols", a.cfg.Feed.Symbols))
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start failed", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// shutdown stops inputs first, then drains the engine's outputs and finally
// releases infrastructure clients.
func (a *App) shutdown(ctx context.Context) {
	a.log.Info("shutting down")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := a.httpServer.Stop(sctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.log.Warn("feed collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(sctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.pipeline.Stop()

	if err := a.processor.Close(sctx); err != nil {
		a.log.Warn("archive flush incomplete", applogger.Error(err))
	}

	if err := a.dispatcher.Stop(sctx); err != nil {
		a.log.Warn("dispatcher drain incomplete", applogger.Error(err))
	}
	if n := a.dispatcher.Dropped(); n > 0 {
		a.log.Warn("signals dropped during run", applogger.Int64("count", n))
	}

	if a.alertQueue != nil {
		if err := a.alertQueue.Stop(sctx); err != nil {
			a.log.Warn("alert queue stop error", applogger.Error(err))
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}

	stats := a.svc.Stats()
	a.log.Info("shutdown complete",
		applogger.Int("tracked_assets", stats.TrackedAssets),
		applogger.Int("contagion_events", stats.ContagionEvents),
	)
}
