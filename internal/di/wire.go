//go:build wireinject
// +build wireinject

package di

import (
	"Kessan/pkg/config"
	"Kessan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvidePostgresClient,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Stores
		ProvideStockStore,
		ProvideNewsStore,
		ProvideLinkStore,
		ProvideAnalysisStore,
		ProvideAlertStore,
		ProvidePriceStore,
		ProvidePublisher,

		// Data source routing
		ProvideRegistry,

		// Use cases
		ProvideMapper,
		ProvideAnalysisGenerator,
		ProvideAnalysisService,
		ProvideQuotesHub,
		ProvidePriceService,
		ProvideNewsIngestor,
		ProvideMappingJob,
		ProvideJobQueue,
		ProvideArticlesHandler,
		ProvideChecker,

		// HTTP surface
		ProvideAPIMiddlewares,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
