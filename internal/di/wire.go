//go:build wireinject
// +build wireinject

package di

import (
	"EnerCast/pkg/config"
	"EnerCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStorage,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideForecastStore,
		ProvideMeasurementSink,

		// Domain services
		ProvideModelManager,
		ProvideForecastEngine,
		ProvideOptimizationEngine,

		// Use cases
		ProvideForecastService,
		ProvideMeasurementProcessor,
		ProvideKafkaMeasurementsHandler,
		ProvideCollector,

		// Transport
		ProvideRateLimiter,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
