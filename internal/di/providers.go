package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"FinPulse/internal/domain/repository"
	"FinPulse/internal/domain/service"
	internalrepo "FinPulse/internal/repository"
	"FinPulse/internal/scheduler"
	"FinPulse/internal/service/notify"
	"FinPulse/internal/service/ratelimit"
	"FinPulse/internal/service/source"
	"FinPulse/internal/services/assessment"
	"FinPulse/internal/usecase"
	"FinPulse/pkg/cache"
	pkgch "FinPulse/pkg/clickhouse"
	"FinPulse/pkg/config"
	xhttp "FinPulse/pkg/http"
	pkgkafka "FinPulse/pkg/kafka"
	applogger "FinPulse/pkg/logger"
	"FinPulse/pkg/metrics"
	"FinPulse/pkg/queue"
	"FinPulse/pkg/server"
)

// RunOptions carry the command line choices that shape the graph.
type RunOptions struct {
	// Market limits sources to one group: stocks, crypto or news. Empty or "all" keeps every source.
	Market string
	DryRun bool
	// OneShot marks a single-tick process; an in-memory dedup backend is
	// swapped for the sqlite file so cooldowns survive between runs.
	OneShot bool
}

// Analyzer is what the analyze command runs.
type Analyzer struct {
	Pipeline *usecase.Pipeline
	State    *usecase.State
	Log      *applogger.Logger
}

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
	ProvideHTTPClient,
	ProvideRedisClient,
	ProvideKafkaProducer,
	ProvideClickHouseClient,
)

var pipelineSet = wire.NewSet(
	ProvideDedupStore,
	ProvideArchive,
	ProvideCollector,
	ProvideEngine,
	ProvideRuleEngine,
	ProvideChannels,
	ProvideSink,
	ProvidePipeline,
	ProvideState,
)

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics registers on the default registry served by /metrics.
func ProvideMetrics() *metrics.Recorder {
	return metrics.Default()
}

func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(30*time.Second),
		xhttp.WithUserAgent(source.BrowserUA),
	)
}

// ProvideRedisClient connects only when a redis-backed component is enabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if cfg.Dedup.Backend != "redis" && !cfg.Notifications.RedisQueue.Enabled {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates a producer when the kafka channel is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Notifications.Kafka.Enabled {
		return nil, func() {}, nil
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
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideClickHouseClient connects and applies the archive schema when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch := cfg.ClickHouse
	client, err := pkgch.Open(ctx, pkgch.Options{
		Host:         ch.Host,
		Port:         ch.Port,
		Database:     ch.Database,
		User:         ch.User,
		Password:     ch.Password,
		HTTP:         ch.UseHTTP,
		AsyncInsert:  ch.AsyncInsert,
		WaitForAsync: ch.WaitForAsync,
		DialTimeout:  ch.DialTimeout,
		ReadTimeout:  ch.ReadTimeout,
		MaxExecution: ch.MaxExecutionTime,
		MaxOpenConns: 4,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideDedupStore(cfg *config.Config, opts RunOptions, rdb *redis.Client) (repository.DedupStore, func(), error) {
	backend := cfg.Dedup.Backend
	if backend == "memory" && opts.OneShot {
		backend = "sqlite"
	}
	switch backend {
	case "redis":
		s := internalrepo.NewCacheDedupStore(cache.NewRedisCacheFromClient(rdb, cfg.Dedup.Prefix), cfg.Dedup.Grace)
		// the client is shared and closed by its own cleanup
		return s, func() {}, nil
	case "sqlite":
		s, err := internalrepo.OpenSQLiteDedupStore(context.Background(), cfg.Dedup.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Dedup.MaxEntries))
		s := internalrepo.NewCacheDedupStore(mc, cfg.Dedup.Grace)
		return s, func() { _ = s.Close() }, nil
	}
}

// ProvideArchive returns nil when ClickHouse is disabled.
func ProvideArchive(cfg *config.Config, ch *pkgch.Client, log *applogger.Logger) repository.Archive {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseArchive(ch, cfg.ClickHouse.Database, log)
}

func ProvideCollector(cfg *config.Config, opts RunOptions, httpc *xhttp.Client, m repository.Metrics, log *applogger.Logger) (*usecase.Collector, error) {
	deps := source.Deps{HTTP: httpc, Logger: log, Kafka: cfg.Kafka}
	var specs []usecase.SourceSpec
	for _, sc := range cfg.EnabledSources() {
		if opts.Market != "" && opts.Market != "all" && sc.MarketGroup() != opts.Market {
			continue
		}
		s, err := source.Build(sc, deps)
		if err != nil {
			return nil, err
		}
		specs = append(specs, usecase.SourceSpec{
			Source:      s,
			Timeout:     sc.Timeout,
			MinInterval: sc.MinInterval,
			Group:       sc.MarketGroup(),
		})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no enabled sources for market %q", opts.Market)
	}
	return usecase.NewCollector(specs, cfg.Collector.Workers, m, log), nil
}

// ProvideEngine returns nil when the reasoning stage is disabled.
func ProvideEngine(cfg *config.Config, m repository.Metrics, log *applogger.Logger) *assessment.Engine {
	if cfg.LLM.Disabled {
		return nil
	}
	// the per-attempt deadline comes from the context; the client only needs a backstop
	client := &http.Client{Timeout: cfg.LLM.Timeout + 5*time.Second}
	return assessment.NewEngine(assessment.NewReasoner(cfg.LLM, client), cfg.LLM, m, log)
}

func ProvideRuleEngine(cfg *config.Config, m repository.Metrics, log *applogger.Logger) (*usecase.RuleEngine, error) {
	rules, err := usecase.CompileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	return usecase.NewRuleEngine(rules, m, log), nil
}

func ProvideChannels(cfg *config.Config, producer *pkgkafka.Producer, rdb *redis.Client, log *applogger.Logger) ([]service.Channel, error) {
	deps := notify.Deps{HTTP: xhttp.NewClient(xhttp.WithTimeout(cfg.Notifications.Timeout))}
	if producer != nil {
		deps.Producer = producer
	}
	if rdb != nil {
		deps.Queue = queue.NewRedisPublisher(log, rdb, queue.WithKeyPrefix(cfg.Notifications.RedisQueue.Queue))
	}
	return notify.Build(cfg.Notifications, deps)
}

func ProvideSink(cfg *config.Config, channels []service.Channel, m repository.Metrics, log *applogger.Logger) *notify.Sink {
	return notify.NewSink(channels, cfg.Notifications.Timeout, m, log)
}

func ProvidePipeline(
	cfg *config.Config,
	opts RunOptions,
	collector *usecase.Collector,
	engine *assessment.Engine,
	rules *usecase.RuleEngine,
	sink *notify.Sink,
	archive repository.Archive,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Pipeline {
	keywords := cfg.LLM.Keywords
	if len(keywords) == 0 {
		keywords = assessment.DefaultKeywords
	}
	popts := []usecase.PipelineOption{
		usecase.WithNotifier(sink),
		usecase.WithKeywords(keywords),
		usecase.WithDryRun(opts.DryRun),
	}
	if engine != nil {
		popts = append(popts, usecase.WithAssessment(engine))
	}
	if archive != nil {
		popts = append(popts, usecase.WithArchive(archive))
	}
	return usecase.NewPipeline(collector, rules, m, log, popts...)
}

func ProvideState(cfg *config.Config, dedup repository.DedupStore) *usecase.State {
	return &usecase.State{
		Dedup:   dedup,
		Limiter: ratelimit.New(),
		History: assessment.NewHistory(cfg.LLM.HistoryWindow),
	}
}

func ProvideScheduler(cfg *config.Config, p *usecase.Pipeline, state *usecase.State, m repository.Metrics, log *applogger.Logger) (*scheduler.Scheduler, error) {
	triggers, err := scheduler.BuildTriggers(cfg.Scheduler.Triggers, time.Now())
	if err != nil {
		return nil, err
	}
	return scheduler.New(p, state, triggers,
		scheduler.WithPollInterval(cfg.Scheduler.PollInterval),
		scheduler.WithMetrics(m),
		scheduler.WithLogger(log),
	), nil
}

func ProvideApp(cfg *config.Config, sched *scheduler.Scheduler, log *applogger.Logger) *server.App {
	return server.New(cfg, sched, log)
}

func ProvideAnalyzer(p *usecase.Pipeline, state *usecase.State, log *applogger.Logger) *Analyzer {
	return &Analyzer{Pipeline: p, State: state, Log: log}
}
