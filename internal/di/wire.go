//go:build wireinject
// +build wireinject

package di

import (
	"EffortLab/pkg/config"
	"EffortLab/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,

		// Repositories
		ProvideTrialStorage,
		ProvideTrialPublisher,
		ProvideMarkerSink,
		ProvideDevice,

		// Use cases
		ProvideRetryQueue,
		ProvideTrialProcessor,
		ProvideTrialBatcher,
		ProvideTrialSink,
		ProvideMarkerPipeline,
		ProvideTrialRunner,
		ProvideCalibrationService,
		ProvideSessionService,
		ProvideScheduleService,
		ProvideKafkaConsumer,
		ProvideKafkaTrialsHandler,

		// Transport
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
