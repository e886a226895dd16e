//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinPulse/internal/domain/repository"
	"FinPulse/internal/service/notify"
	"FinPulse/pkg/config"
	"FinPulse/pkg/metrics"
	"FinPulse/pkg/server"
)

// InitializeMonitor wires the long-running monitor.
func InitializeMonitor(cfg *config.Config, opts RunOptions) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		pipelineSet,
		ProvideScheduler,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeAnalyzer wires a single tick for the analyze command.
func InitializeAnalyzer(cfg *config.Config, opts RunOptions) (*Analyzer, func(), error) {
	wire.Build(
		infraSet,
		pipelineSet,
		ProvideAnalyzer,
	)
	return nil, nil, nil
}

// InitializeNotifier wires only the notification channels.
func InitializeNotifier(cfg *config.Config) (*notify.Sink, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
		ProvideRedisClient,
		ProvideKafkaProducer,
		ProvideChannels,
		ProvideSink,
	)
	return nil, nil, nil
}
