//go:build wireinject
// +build wireinject

package di

import (
	"ContagionRadar/pkg/config"
	"ContagionRadar/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Engine
		ProvideEngine,
		ProvideContagionService,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideCache,

		// Repositories and sinks
		ProvideArchive,
		ProvideSnapshotStore,
		ProvideAlertQueue,
		ProvideSignalSinks,
		ProvideDispatcher,

		// Use cases
		ProvideObservationProcessor,
		ProvideIngestPipeline,
		ProvideFeedCollector,
		ProvideKafkaConsumer,
		ProvideKafkaObservationsHandler,
		ProvideReplay,

		// HTTP
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
