package di

import (
	"context"
	"fmt"
	"time"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"
	"EffortLab/internal/handler/api"
	mid "EffortLab/internal/middleware"
	internalrepo "EffortLab/internal/repository"
	"EffortLab/internal/service/device"
	"EffortLab/internal/services/calibration"
	"EffortLab/internal/services/effort"
	"EffortLab/internal/services/schedule"
	"EffortLab/internal/services/scoring"
	"EffortLab/internal/services/staircase"
	"EffortLab/internal/usecase"
	"EffortLab/pkg/cache"
	pkgch "EffortLab/pkg/clickhouse"
	"EffortLab/pkg/config"
	xhttp "EffortLab/pkg/http"
	"EffortLab/pkg/http/middleware"
	pkgkafka "EffortLab/pkg/kafka"
	"EffortLab/pkg/logger"
	"EffortLab/pkg/metrics"
	"EffortLab/pkg/queue"
	"EffortLab/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideKafkaProducer creates the shared producer, or nil when no broker is
// configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithBatching(cfg.Backend.BatchSize, cfg.Backend.BatchTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the process logger. Errors are digested to the error
// topic when one is configured.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logger.ErrorTopic != "" && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			Topic:     cfg.Logger.ErrorTopic,
			Publisher: producer,
		})
	}
	return l, nil
}

// ProvideMetrics registers the recorder on the default registry, which the
// HTTP server exposes.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if cfg.Metrics.Disabled {
		return metrics.Nop{}
	}
	pkgkafka.SetMetricsRegisterer(prometheus.DefaultRegisterer)
	return metrics.New()
}

// ProvideClickHouseClient connects when the backend or the consumer sink
// needs ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	needed := cfg.Backend.Type == usecase.BackendClickHouse ||
		(cfg.Kafka.Consumer.Enabled && cfg.Kafka.Consumer.Sink == usecase.BackendClickHouse)
	if !needed {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Addr),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideTrialStorage opens the queryable trial store. With the kafka
// backend this is the consumer's sink, or nil when the consumer is off.
func ProvideTrialStorage(cfg *config.Config, ch *pkgch.Client, log *logger.Logger) (repository.Storage, error) {
	kind := cfg.Backend.Type
	if kind == usecase.BackendKafka {
		if !cfg.Kafka.Consumer.Enabled {
			return nil, nil
		}
		kind = cfg.Kafka.Consumer.Sink
	}

	var (
		store repository.Storage
		err   error
	)
	switch kind {
	case usecase.BackendClickHouse:
		store = internalrepo.NewClickHouseTrialStore(ch, log)
	case usecase.BackendSQLite:
		store, err = internalrepo.OpenSQLiteTrialStore(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown trial store %q", kind)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("trial store schema: %w", err)
	}
	return store, nil
}

// ProvideTrialPublisher returns the kafka publisher for the kafka backend.
func ProvideTrialPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.Publisher {
	if cfg.Backend.Type != usecase.BackendKafka || producer == nil {
		return nil
	}
	return internalrepo.NewKafkaTrialPublisher(producer, cfg.Kafka.TrialsTopic)
}

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers a local cache over Redis, or falls back to memory.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(rc, cfg.Redis.LocalTTL)
}

// ProvideRetryQueue builds the write-behind queue for rejected trial
// records. It needs Redis.
func ProvideRetryQueue(cfg *config.Config, rc *cache.RedisCache, log *logger.Logger) *queue.RedisQueue {
	if rc == nil || !cfg.Redis.Retry.Enabled {
		return nil
	}
	return queue.NewRedisQueue(log, rc.Client(), queue.Config{
		KeyPrefix:  cfg.Redis.Prefix + ":retry",
		Workers:    cfg.Redis.Retry.Workers,
		RetryLimit: cfg.Redis.Retry.RetryLimit,
		RetryDelay: cfg.Redis.Retry.RetryDelay,
	})
}

func ProvideTrialProcessor(
	cfg *config.Config,
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	q *queue.RedisQueue,
	log *logger.Logger,
) (*usecase.TrialProcessor, error) {
	opts := []usecase.ProcessorOption{usecase.WithProcessorLogger(log)}
	if q != nil {
		opts = append(opts, usecase.WithRetryQueue(q))
	}
	proc, err := usecase.NewTrialProcessor(cfg.Backend.Type, pub, store, m, opts...)
	if err != nil {
		return nil, fmt.Errorf("trial processor: %w", err)
	}
	if q != nil {
		q.RegisterJob(usecase.NewRetryJob(proc))
	}
	return proc, nil
}

// ProvideTrialBatcher batches ClickHouse inserts. Other backends write
// through.
func ProvideTrialBatcher(cfg *config.Config, proc *usecase.TrialProcessor, log *logger.Logger) *usecase.TrialBatcher {
	if cfg.Backend.Type != usecase.BackendClickHouse || cfg.Backend.BatchSize <= 1 {
		return nil
	}
	return usecase.NewTrialBatcher(proc, cfg.Backend.BatchSize, cfg.Backend.BatchTimeout, log)
}

func ProvideTrialSink(proc *usecase.TrialProcessor, b *usecase.TrialBatcher) usecase.TrialSink {
	if b != nil {
		return b
	}
	return proc
}

// ProvideMarkerSink selects where event markers are delivered.
func ProvideMarkerSink(cfg *config.Config, producer *pkgkafka.Producer) repository.MarkerSink {
	switch cfg.Trigger.Type {
	case "kafka":
		return internalrepo.NewKafkaMarkerSink(producer, cfg.Kafka.MarkersTopic)
	case "http":
		return device.NewBridgeSink(xhttp.NewClient(xhttp.WithTimeout(cfg.Trigger.Timeout)), cfg.Trigger.URL)
	default:
		return device.NopSink{}
	}
}

func ProvideMarkerPipeline(cfg *config.Config, sink repository.MarkerSink, m repository.Metrics, log *logger.Logger) *mid.MarkerPipeline {
	return mid.NewMarkerPipeline(sink, m,
		mid.WithBufferSize(cfg.Trigger.BufferSize),
		mid.WithDeliveryTimeout(cfg.Trigger.Timeout),
		mid.WithLogger(log),
	)
}

// ProvideDevice connects the live signal source when enabled.
func ProvideDevice(cfg *config.Config, log *logger.Logger) *device.WebsocketSource {
	if !cfg.Device.Enabled {
		return nil
	}
	return device.NewWebsocketSource(cfg.Device.URL,
		device.WithReconnectDelay(cfg.Device.ReconnectDelay),
		device.WithStaleAfter(cfg.Device.ReadTimeout),
		device.WithPingInterval(cfg.Device.PingInterval),
		device.WithSourceLogger(log),
	)
}

// RunnerConfig maps the effort, staircase and scoring sections.
func RunnerConfig(cfg *config.Config) usecase.RunnerConfig {
	e := effort.DefaultConfig()
	e.ThresholdFraction = cfg.Effort.ThresholdFraction
	e.RequiredDuration = cfg.Effort.RequiredDuration
	e.TimeLimit = cfg.Effort.TimeLimit
	e.StartThreshold = cfg.Effort.StartThreshold
	e.WaitForStart = cfg.Effort.WaitForStart

	sc := cfg.Staircase
	s := staircase.DefaultConfig()
	s.InitialK = sc.InitialK
	s.InitialReward = sc.InitialReward
	s.InitialEffort = sc.InitialEffort
	s.StepScale = sc.StepScale
	s.TrialOffset = sc.TrialOffset
	s.Solve = staircase.Solve(sc.Solve)
	s.RewardMin, s.RewardMax = sc.RewardMin, sc.RewardMax
	s.EffortMin, s.EffortMax = sc.EffortMin, sc.EffortMax
	s.RewardDrawMin, s.RewardDrawMax = sc.RewardDrawMin, sc.RewardDrawMax
	s.MinRewardChange = sc.MinRewardChange

	return usecase.RunnerConfig{
		Effort:            e,
		Staircase:         s,
		Rules:             scoring.Rules{FailurePenalty: sc.FailurePenalty},
		EffortUnitPercent: sc.EffortUnitPercent,
		Seed:              sc.Seed,
	}
}

// ScheduleFactors maps the schedule section.
func ScheduleFactors(cfg *config.Config) schedule.Factors {
	sc := cfg.Schedule
	f := schedule.Factors{
		Repeats:         sc.Repeats,
		EffortLevels:    sc.EffortLevels,
		MagnitudeLevels: sc.MagnitudeLevels,
		TrialsPerBlock:  sc.TrialsPerBlock,
		Delta:           sc.Delta,
	}
	for _, u := range sc.UncertaintyLevels {
		f.UncertaintyLevels = append(f.UncertaintyLevels, models.UncertaintyClass(u))
	}
	for _, b := range sc.BlockTypes {
		f.BlockTypes = append(f.BlockTypes, models.ActionType(b))
	}
	return f
}

func ProvideTrialRunner(cfg *config.Config, sink usecase.TrialSink, m repository.Metrics, log *logger.Logger) (*usecase.TrialRunner, error) {
	r, err := usecase.NewTrialRunner(RunnerConfig(cfg), sink, m, usecase.WithRunnerLogger(log))
	if err != nil {
		return nil, fmt.Errorf("trial runner: %w", err)
	}
	return r, nil
}

func ProvideCalibrationService(cfg *config.Config, c cache.Service, log *logger.Logger) *usecase.CalibrationService {
	rec := calibration.NewRecorder(
		calibration.WithRecordingDuration(cfg.Calibration.RecordingDuration),
		calibration.WithStartThreshold(cfg.Effort.StartThreshold),
		calibration.WithLogger(log),
	)
	return usecase.NewCalibrationService(internalrepo.NewFileCalibrationStore(cfg.Calibration.Dir),
		usecase.WithCalibrationCache(c, cfg.Calibration.CacheTTL),
		usecase.WithRecorder(rec),
		usecase.WithCalibrationLogger(log),
	)
}

func ProvideSessionService(
	cfg *config.Config,
	c cache.Service,
	calib *usecase.CalibrationService,
	runner *usecase.TrialRunner,
	log *logger.Logger,
) *usecase.SessionService {
	store := internalrepo.NewCacheSessionStore(c, cfg.Session.TTL, cfg.Session.LockTTL)
	return usecase.NewSessionService(store, calib, runner, log)
}

func ProvideScheduleService(cfg *config.Config) *usecase.ScheduleService {
	return usecase.NewScheduleService(ScheduleFactors(cfg), cfg.Schedule.Seed)
}

// ProvideHTTPHandler registers the experiment routes. The live trial route
// is only served when a device is connected.
func ProvideHTTPHandler(
	cfg *config.Config,
	log *logger.Logger,
	sessions *usecase.SessionService,
	calib *usecase.CalibrationService,
	schedules *usecase.ScheduleService,
	proc *usecase.TrialProcessor,
	pipeline *mid.MarkerPipeline,
	src *device.WebsocketSource,
) (*api.ExperimentHandler, error) {
	opts := []api.HandlerOption{
		api.WithRateLimit(middleware.NewLimiter(cfg.Server.RateLimit.Burst, cfg.Server.RateLimit.PerSec)),
	}
	if src != nil {
		live, err := device.Corrected(cfg.Device.Mode, src, cfg.Device.Baseline, cfg.Device.MouseScale)
		if err != nil {
			return nil, fmt.Errorf("device: %w", err)
		}
		opts = append(opts, api.WithLiveDevice(live, pipeline.Trigger, cfg.Effort.PollInterval))
	}
	return api.NewExperimentHandler(log, sessions, calib, schedules, proc, RunnerConfig(cfg).Staircase, opts...), nil
}

func ProvideHTTPServer(cfg *config.Config, h *api.ExperimentHandler, proc *usecase.TrialProcessor, log *logger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigins),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithHealthCheck(proc.Health),
	}
	if !cfg.Metrics.Disabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	}
	return xhttp.NewServer(h, log, opts...)
}

// ProvideKafkaConsumer creates the trial consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithHook(pkgkafka.TraceHook())
	return consumer, nil
}

// ProvideKafkaTrialsHandler writes consumed trial records into the sink
// store.
func ProvideKafkaTrialsHandler(cfg *config.Config, store repository.Storage, m repository.Metrics) *usecase.KafkaTrialsHandler {
	if !cfg.Kafka.Consumer.Enabled || store == nil {
		return nil
	}
	return usecase.NewKafkaTrialsHandler(cfg.Kafka.TrialsTopic, store, m, cfg.Kafka.Consumer.Sink)
}

func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	srv *xhttp.Server,
	proc *usecase.TrialProcessor,
	batcher *usecase.TrialBatcher,
	pipeline *mid.MarkerPipeline,
	src *device.WebsocketSource,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTrialsHandler,
	producer *pkgkafka.Producer,
	rc *cache.RedisCache,
	ch *pkgch.Client,
) *server.App {
	opts := []server.Option{
		server.WithHTTPServer(srv),
		server.WithProcessor(proc),
		server.WithMarkerPipeline(pipeline),
	}
	if batcher != nil {
		opts = append(opts, server.WithBatcher(batcher))
	}
	if src != nil {
		opts = append(opts, server.WithDevice(src))
	}
	if q != nil {
		opts = append(opts, server.WithRetryQueue(q))
	}
	if consumer != nil && kh != nil {
		consumer.RegisterHandler(kh)
		opts = append(opts, server.WithConsumer(consumer))
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer))
	}
	if rc != nil {
		opts = append(opts, server.WithCloser("redis", rc))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch))
	}
	return server.New(cfg, log, opts...)
}
