package di

import (
	"context"
	"fmt"
	"time"

	"EnerCast/internal/domain/models"
	"EnerCast/internal/domain/repository"
	"EnerCast/internal/handler/api"
	mid "EnerCast/internal/middleware"
	internalrepo "EnerCast/internal/repository"
	"EnerCast/internal/service/ratelimit"
	"EnerCast/internal/service/telemetry"
	"EnerCast/internal/services/forecasting"
	"EnerCast/internal/services/modelmanager"
	"EnerCast/internal/services/optimization"
	"EnerCast/internal/usecase"
	"EnerCast/pkg/cache"
	pkgch "EnerCast/pkg/clickhouse"
	"EnerCast/pkg/config"
	xhttp "EnerCast/pkg/http"
	pkgkafka "EnerCast/pkg/kafka"
	applogger "EnerCast/pkg/logger"
	"EnerCast/pkg/metrics"
	"EnerCast/pkg/postgres"
	"EnerCast/pkg/server"

	"github.com/segmentio/kafka-go"
)

const schemaTimeout = 10 * time.Second

// Storage groups the stores selected by backend.type.
type Storage struct {
	Measurements repository.MeasurementStore
	Forecasts    repository.ForecastStore
	Core         repository.CoreMetadataSource
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStorage opens the configured backend. "memory" keeps everything in
// process; "sql" stores measurements in ClickHouse and forecasts plus building
// metadata in PostgreSQL.
func ProvideStorage(cfg *config.Config, l *applogger.Logger) (*Storage, func(), error) {
	if cfg.Backend.Type != "sql" {
		core := internalrepo.NewMemoryCoreStore()
		for _, b := range cfg.Buildings {
			core.PutBuilding(models.BuildingMetadata{
				ID:         b.ID,
				Name:       b.Name,
				Address:    b.Address,
				Timezone:   b.Timezone,
				CapacityKW: b.CapacityKW,
			})
		}
		l.Info("storage: in-memory backend", applogger.Int("buildings", len(cfg.Buildings)))
		return &Storage{
			Measurements: internalrepo.NewMemoryMeasurementStore(),
			Forecasts:    internalrepo.NewMemoryForecastStore(),
			Core:         core,
		}, func() {}, nil
	}

	ch, err := provideClickHouse(cfg)
	if err != nil {
		return nil, nil, err
	}
	pg, err := providePostgres(cfg)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	measurements := internalrepo.NewCHMeasurementStore(ch, cfg.ClickHouse.Table)
	measurements.SetLogger(l)
	l.Info("storage: sql backend ready",
		applogger.String("clickhouse_db", cfg.ClickHouse.Database),
		applogger.String("table", cfg.ClickHouse.Table),
	)

	cleanup := func() {
		if err := pg.Close(); err != nil {
			l.Warn("postgres close failed", applogger.Error(err))
		}
		if err := ch.Close(); err != nil {
			l.Warn("clickhouse close failed", applogger.Error(err))
		}
	}
	return &Storage{
		Measurements: measurements,
		Forecasts:    internalrepo.NewPGForecastStore(pg.DB()),
		Core:         internalrepo.NewPGCoreStore(pg.DB()),
	}, cleanup, nil
}

func provideClickHouse(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.MeasurementSchema(cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func providePostgres(cfg *config.Config) (*postgres.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	client, err := postgres.NewClient(ctx,
		postgres.WithURL(cfg.Postgres.DSN),
		postgres.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime),
		postgres.WithConnectTimeout(cfg.Postgres.ConnectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}

	schema := append(append([]string{}, internalrepo.CoreSchema...), internalrepo.ForecastSchema...)
	if err := client.InitSchema(ctx, schema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return client, nil
}

// ProvideCache returns a layered Redis cache when Redis is enabled, otherwise
// an in-process cache. Either one also serves as the training lock.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(cache.WithMemoryDefaultTTL(cfg.Redis.CacheTTL))
		return mc, func() { _ = mc.Close() }, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	rc, err := cache.NewRedisCache(ctx,
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}

	var opts []cache.LayeredOption
	if cfg.Redis.L1Size > 0 {
		opts = append(opts, cache.WithLayeredMemorySize(cfg.Redis.L1Size))
	}
	lc := cache.NewLayeredCache(rc, append(opts, cache.WithLayeredMemoryTTL(time.Minute))...)
	l.Info("cache: redis enabled",
		applogger.String("host", cfg.Redis.Host),
		applogger.Int("port", cfg.Redis.Port),
	)
	return lc, func() {
		if err := lc.Close(); err != nil {
			l.Warn("cache close failed", applogger.Error(err))
		}
	}, nil
}

// ProvideForecastStore puts the forecast read-through cache in front of the
// backend store when Redis is enabled.
func ProvideForecastStore(st *Storage, c cache.Service, cfg *config.Config, l *applogger.Logger) repository.ForecastStore {
	if !cfg.Redis.Enabled {
		return st.Forecasts
	}
	return internalrepo.NewCachedForecastStore(st.Forecasts, c, cfg.Redis.CacheTTL, l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
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

// ProvideKafkaConsumer creates a Kafka consumer, or nil unless both Kafka and
// the consumer are enabled.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerBufferSize(cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerFetch(cc.MinBytes, cc.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			m.RecordError("kafka_consume")
			l.Warn("kafka message failed",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Error(err),
			)
		},
	})
	return consumer, nil
}

// ProvideMeasurementSink batches writes into the measurement store.
func ProvideMeasurementSink(st *Storage, cfg *config.Config, l *applogger.Logger) *internalrepo.BatchingSink {
	return internalrepo.NewBatchingSink(st.Measurements, cfg.Backend.BatchSize, cfg.Backend.BatchTimeout, l)
}

// ProvideMeasurementProcessor routes live readings to Kafka when enabled and
// to the batching sink otherwise.
func ProvideMeasurementProcessor(
	producer *pkgkafka.Producer,
	sink *internalrepo.BatchingSink,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.MeasurementProcessor {
	if producer == nil {
		return usecase.NewMeasurementProcessor(nil, sink, m, usecase.BackendStore)
	}
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.MeasurementsTopic)
	return usecase.NewMeasurementProcessor(pub, sink, m, usecase.BackendKafka)
}

// ProvideKafkaMeasurementsHandler stores readings consumed from the
// measurements topic.
func ProvideKafkaMeasurementsHandler(sink *internalrepo.BatchingSink, m repository.Metrics, cfg *config.Config) *usecase.KafkaMeasurementsHandler {
	return usecase.NewKafkaMeasurementsHandler(cfg.Kafka.MeasurementsTopic, sink, m)
}

// ProvideCollector creates the telemetry collector, or nil when telemetry is
// disabled.
func ProvideCollector(
	cfg *config.Config,
	proc *usecase.MeasurementProcessor,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.MeasurementCollector {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	stream := telemetry.New(
		cfg.Telemetry.Token,
		cfg.Telemetry.WebSocketURL,
		cfg.Telemetry.Buildings,
		cfg.Telemetry.ReconnectDelay,
		cfg.Telemetry.PingInterval,
		l,
	)
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
		mid.WithPipelineLogger(l),
	)
	return usecase.NewMeasurementCollector(stream, proc, pipe, m, l)
}

// ProvideModelManager creates the model registry.
func ProvideModelManager(cfg *config.Config, l *applogger.Logger) *modelmanager.Manager {
	return modelmanager.New(
		modelmanager.WithDefaultVersion(cfg.Forecast.ModelVersion),
		modelmanager.WithLogger(l),
	)
}

// ProvideForecastEngine creates the forecast engine over the measurement store.
func ProvideForecastEngine(
	st *Storage,
	mgr *modelmanager.Manager,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *forecasting.Engine {
	return forecasting.NewEngine(st.Measurements, mgr,
		forecasting.WithAccuracyThreshold(cfg.Forecast.AccuracyThreshold),
		forecasting.WithLookback(cfg.Forecast.Lookback, cfg.Forecast.MinPoints),
		forecasting.WithEngineLogger(l),
		forecasting.WithEngineMetrics(m),
	)
}

// ProvideOptimizationEngine creates the optimization engine. Zero tariff or
// constraint values keep the built-in defaults.
func ProvideOptimizationEngine(cfg *config.Config, l *applogger.Logger) *optimization.Engine {
	o := cfg.Optimization
	p := optimization.DefaultPricing()
	setIfPositive(&p.Peak, o.PeakRate)
	setIfPositive(&p.OffPeak, o.OffPeakRate)
	setIfPositive(&p.SuperOffPeak, o.SuperOffPeakRate)
	setIfPositive(&p.DemandCharge, o.DemandCharge)

	c := optimization.DefaultConstraints()
	setIfPositive(&c.MinTemperatureC, o.MinTemperatureC)
	setIfPositive(&c.MaxTemperatureC, o.MaxTemperatureC)
	setIfPositive(&c.MaxLoadShiftKWh, o.MaxLoadShiftKWh)
	setIfPositive(&c.MinSavingsThreshold, o.MinSavingsThreshold)
	setIfPositive(&c.LoadShiftPeakKW, o.LoadShiftPeakKW)

	return optimization.NewEngine(
		optimization.WithPricing(p),
		optimization.WithConstraints(c),
		optimization.WithLogger(l),
	)
}

func setIfPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

// ProvideForecastService wires the orchestration service.
func ProvideForecastService(
	st *Storage,
	forecasts repository.ForecastStore,
	engine *forecasting.Engine,
	opt *optimization.Engine,
	mgr *modelmanager.Manager,
	producer *pkgkafka.Producer,
	c cache.Service,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.ForecastService {
	opts := []usecase.ServiceOption{
		usecase.WithFreshness(cfg.Forecast.Freshness),
		usecase.WithSourceTimeout(cfg.Forecast.SourceTimeout),
		usecase.WithFallbackBaseline(cfg.Forecast.FallbackBaselineW),
		usecase.WithDefaultParameters(models.ForecastParameters{
			DefaultHorizon:    cfg.Forecast.DefaultHorizon,
			AccuracyThreshold: cfg.Forecast.AccuracyThreshold,
			ModelPreference:   models.PreferenceAuto,
		}),
		usecase.WithTrainingLock(c, cfg.Forecast.TrainingLockTTL),
		usecase.WithServiceMetrics(m),
		usecase.WithServiceLogger(l),
	}
	if producer != nil {
		opts = append(opts, usecase.WithEventPublisher(internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)))
	}
	return usecase.NewForecastService(st.Core, forecasts, st.Measurements, engine, opt, mgr, opts...)
}

// ProvideRateLimiter returns a per-client limiter for write endpoints, or nil
// when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

// ProvideHTTPServer registers the API handlers on the HTTP server.
func ProvideHTTPServer(
	svc *usecase.ForecastService,
	st *Storage,
	rl *ratelimit.Limiter,
	cfg *config.Config,
	l *applogger.Logger,
) *xhttp.Server {
	handlers := []xhttp.Handler{
		api.NewForecastEchoHandler(l, svc, rl),
		api.NewMeasurementsEchoHandler(l, st.Measurements),
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(len(cfg.Server.AllowOrigins) > 0, cfg.Server.AllowOrigins...),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, cfg.Metrics.SlowThreshold))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp assembles the application lifecycle. Closers run in reverse
// order: the processor (and with it the Kafka producer) closes after the
// batching sink has flushed.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	collector *usecase.MeasurementCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaMeasurementsHandler,
	proc *usecase.MeasurementProcessor,
	sink *internalrepo.BatchingSink,
) *server.App {
	opts := []server.AppOption{
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithCloser("measurement processor", proc),
		server.WithCloser("measurement sink", sink),
	}
	if collector != nil {
		opts = append(opts, server.WithCollector(collector))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, kh))
	}
	return server.New(l, httpServer, opts...)
}
