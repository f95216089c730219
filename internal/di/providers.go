package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"ContagionRadar/internal/domain/models"
	"ContagionRadar/internal/domain/repository"
	"ContagionRadar/internal/handler/api"
	mid "ContagionRadar/internal/middleware"
	internalrepo "ContagionRadar/internal/repository"
	"ContagionRadar/internal/service/feed"
	apimetrics "ContagionRadar/internal/service/metrics"
	"ContagionRadar/internal/service/ratelimit"
	"ContagionRadar/internal/service/webhook"
	"ContagionRadar/internal/services/contagion"
	"ContagionRadar/internal/usecase"
	"ContagionRadar/pkg/cache"
	pkgch "ContagionRadar/pkg/clickhouse"
	"ContagionRadar/pkg/config"
	xhttp "ContagionRadar/pkg/http"
	pkgkafka "ContagionRadar/pkg/kafka"
	applogger "ContagionRadar/pkg/logger"
	"ContagionRadar/pkg/metrics"
	"ContagionRadar/pkg/queue"
	"ContagionRadar/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// ProvideLogger builds the application logger. With the collector enabled,
// repeated entries are aggregated and shipped to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
		Service:    "contagion-radar",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logger.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.Collector.Interval,
			CountThreshold: cfg.Logger.Collector.Threshold,
			Topic:          cfg.Logger.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideEngine creates the contagion engine from the YAML tunables.
func ProvideEngine(cfg *config.Config, l *applogger.Logger) *contagion.Engine {
	return contagion.New(cfg.Contagion,
		contagion.WithLogger(l.With(applogger.String("component", "engine"))),
	)
}

// ProvideContagionService wraps the engine for concurrent use.
func ProvideContagionService(engine *contagion.Engine, m repository.Metrics) *usecase.ContagionService {
	return usecase.NewContagionService(engine, m)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, 0),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithCompression(cfg.ClickHouse.Compression),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideArchive creates the ClickHouse archive and its schema.
func ProvideArchive(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.ObservationArchive, error) {
	if client == nil {
		return nil, nil
	}
	archive := internalrepo.NewClickHouseArchive(client, cfg.ClickHouse.Database, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return archive, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRedisClient connects to Redis, or returns nil when it is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// ProvideCache returns a memory-fronted Redis cache, or a process-local one
// without Redis.
func ProvideCache(cfg *config.Config, rdb *redis.Client) cache.Service {
	if rdb == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(10000))
	}
	return cache.NewLayeredCache(
		cache.NewRedisCacheWithClient(rdb, cfg.Redis.Prefix),
		cache.WithLayeredMemorySize(2000),
		cache.WithLayeredMemoryTTL(5*time.Second),
	)
}

// ProvideSnapshotStore keeps the latest signal per origin in the cache.
func ProvideSnapshotStore(c cache.Service, cfg *config.Config) *internalrepo.CacheSnapshotStore {
	return internalrepo.NewCacheSnapshotStore(c, cfg.Redis.SnapshotTTL)
}

// ProvideAlertQueue creates the Redis queue that delivers webhook alerts, or
// nil when webhooks are disabled.
func ProvideAlertQueue(cfg *config.Config, rdb *redis.Client, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Webhook.Enabled || rdb == nil {
		return nil
	}
	opts := []queue.RedisQueueOption{queue.WithKeyPrefix(cfg.Redis.Prefix + ":alerts")}
	if cfg.Webhook.EnqueueOnly {
		opts = append(opts, queue.WithProducerOnly())
	}
	q := queue.NewRedisQueue(l.With(applogger.String("component", "alert_queue")),
		&queue.QueueConfig{
			Workers:       cfg.Webhook.QueueWorkers,
			RetryLimit:    cfg.Webhook.RetryLimit,
			RetryDelay:    cfg.Webhook.RetryDelay,
			MaxRetryDelay: cfg.Webhook.MaxRetryDelay,
		},
		rdb,
		opts...,
	)
	if !cfg.Webhook.EnqueueOnly {
		notifier := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout, l)
		q.RegisterJob(webhook.NewAlertJob(notifier))
	}
	return q
}

// ProvideSignalSinks collects every enabled destination for engine output.
func ProvideSignalSinks(
	cfg *config.Config,
	archive repository.ObservationArchive,
	producer *pkgkafka.Producer,
	snapshots *internalrepo.CacheSnapshotStore,
	alertQueue *queue.RedisQueue,
) []repository.SignalSink {
	sinks := []repository.SignalSink{snapshots}
	if archive != nil {
		if s, ok := archive.(repository.SignalSink); ok {
			sinks = append(sinks, s)
		}
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topics.Signals, cfg.Kafka.Topics.Rotations))
	}
	if alertQueue != nil {
		sinks = append(sinks, webhook.NewAlertSink(alertQueue, models.Severity(cfg.Webhook.MinSeverity)))
	}
	return sinks
}

// ProvideDispatcher fans engine output out to the sinks and subscribes it to the service.
func ProvideDispatcher(
	cfg *config.Config,
	svc *usecase.ContagionService,
	sinks []repository.SignalSink,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalDispatcher {
	d := usecase.NewSignalDispatcher(sinks, m, l, cfg.Dispatcher.BufferSize, cfg.Dispatcher.PublishTimeout)
	svc.Subscribe(d)
	return d
}

// ProvideObservationProcessor creates the engine-facing processor.
func ProvideObservationProcessor(
	cfg *config.Config,
	svc *usecase.ContagionService,
	archive repository.ObservationArchive,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ObservationProcessor {
	return usecase.NewObservationProcessor(svc, archive, m, l, cfg.ClickHouse.BatchSize, cfg.ClickHouse.FlushInterval)
}

// ProvideIngestPipeline builds the middleware between live sources and the processor.
func ProvideIngestPipeline(
	cfg *config.Config,
	processor *usecase.ObservationProcessor,
	m repository.Metrics,
	l *applogger.Logger,
) *mid.IngestPipeline {
	return mid.NewIngestPipeline(processor, m,
		mid.WithMaxRPS(cfg.Ingest.MaxRPS),
		mid.WithPipelineLogger(l),
	)
}

// ProvideFeedCollector creates the websocket collector, or nil when the feed is disabled.
func ProvideFeedCollector(
	cfg *config.Config,
	pipe *mid.IngestPipeline,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ObservationCollector {
	if !cfg.Feed.Enabled {
		return nil
	}
	stream := feed.New(feed.Config{
		URL:               cfg.Feed.URL,
		APIKey:            cfg.Feed.APIKey,
		Symbols:           cfg.Feed.Symbols,
		ReconnectDelay:    cfg.Feed.ReconnectDelay,
		MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
		PingInterval:      cfg.Feed.PingInterval,
		BufferSize:        cfg.Feed.BufferSize,
	}, feed.WithLogger(l))
	return usecase.NewObservationCollector(stream, pipe, m, l)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil
// when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.LoggingHook(l.With(applogger.String("component", "kafka_consumer"))),
	))
	return consumer, nil
}

// ProvideKafkaObservationsHandler handles the observations topic. Messages go
// straight to the processor; the consumer already retries and dead-letters.
func ProvideKafkaObservationsHandler(
	cfg *config.Config,
	processor *usecase.ObservationProcessor,
	m repository.Metrics,
) *usecase.KafkaObservationsHandler {
	return usecase.NewKafkaObservationsHandler(cfg.Kafka.Topics.Observations, processor, m)
}

// ProvideHTTPHandler creates the contagion API handler with health checks for
// every enabled dependency.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.ContagionService,
	pipe *mid.IngestPipeline,
	snapshots *internalrepo.CacheSnapshotStore,
	archive repository.ObservationArchive,
	rdb *redis.Client,
	alertQueue *queue.RedisQueue,
) *api.ContagionEchoHandler {
	opts := []api.HandlerOption{
		api.WithSnapshots(snapshots),
		api.WithRateLimiter(ratelimit.New(cfg.Ingest.ClientRPS, cfg.Ingest.ClientBurst)),
		api.WithAPIMetrics(apimetrics.NewAPIMetrics(prometheus.DefaultRegisterer)),
	}
	if archive != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", archive.Health))
	}
	if rdb != nil {
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	if alertQueue != nil {
		opts = append(opts, api.WithAlertQueue(alertQueue))
	}
	return api.NewContagionEchoHandler(l, svc, pipe, opts...)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.ContagionEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins...),
		xhttp.WithSlowThreshold(cfg.Server.SlowRequest),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l),
	)
}

// ProvideReplay creates the startup replay, or nil when it is disabled.
func ProvideReplay(
	cfg *config.Config,
	archive repository.ObservationArchive,
	svc *usecase.ContagionService,
	l *applogger.Logger,
) *usecase.ReplayUseCase {
	if !cfg.Replay.OnStartup || archive == nil {
		return nil
	}
	return usecase.NewReplayUseCase(archive, svc, cfg.Replay.Lookback, cfg.Replay.Limit, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	svc *usecase.ContagionService,
	processor *usecase.ObservationProcessor,
	pipe *mid.IngestPipeline,
	dispatcher *usecase.SignalDispatcher,
	httpServer *xhttp.Server,
	collector *usecase.ObservationCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaObservationsHandler,
	alertQueue *queue.RedisQueue,
	replay *usecase.ReplayUseCase,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	rdb *redis.Client,
	c cache.Service,
) *server.App {
	app := server.New(cfg, l, svc, processor, pipe, dispatcher, httpServer)
	if collector != nil {
		app.SetCollector(collector)
	}
	if consumer != nil {
		app.SetConsumer(consumer, kh)
	}
	if alertQueue != nil {
		app.SetAlertQueue(alertQueue)
	}
	if replay != nil {
		app.SetReplay(replay)
	}

	// Closers run in reverse: the cache first, the producer last so the log
	// collector can still flush.
	if producer != nil {
		app.AddCloser("kafka_producer", producer.Close)
		app.AddCloser("log_collector", func() error {
			l.RemoveCollector()
			return nil
		})
	}
	if chClient != nil {
		app.AddCloser("clickhouse", chClient.Close)
	}
	if rdb != nil {
		app.AddCloser("redis", rdb.Close)
	}
	if cl, ok := c.(io.Closer); ok {
		app.AddCloser("cache", cl.Close)
	}
	return app
}
