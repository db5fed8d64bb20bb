package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/handler/api"
	internalrepo "FinCast/internal/repository"
	"FinCast/internal/services/forecaster"
	"FinCast/internal/services/seasonal"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/queue"
	"FinCast/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if lc.Level == "" {
		lc.Level = "info"
	}
	if lc.Format == "" {
		lc.Format = "json"
	}
	if lc.Output == "" {
		lc.Output = "stdout"
	}
	return applogger.New(lc)
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the
// series schema exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.Schema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisCache creates the Redis-backed cache service.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}

	c, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix("fincast"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideCacheService selects the cache backend from config. The layered
// backend fronts Redis with an in-process store so hot seasonal entries
// and job lookups skip the network round trip.
func ProvideCacheService(cfg *config.Config, c *cache.RedisCache) cache.Service {
	if cfg.Cache.Type == "layered" {
		var opts []cache.LayeredOption
		if cfg.Cache.MemoryMaxSize > 0 {
			opts = append(opts, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize))
		}
		return cache.NewLayeredCache(c, opts...)
	}
	return c
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSeriesSource creates the ClickHouse-backed series reader.
func ProvideSeriesSource(chClient *pkgch.Client) *internalrepo.ClickHouseSeries {
	return internalrepo.NewClickHouseSeries(chClient)
}

// ProvideBenchmarkSource selects the benchmark backend from config.
func ProvideBenchmarkSource(cfg *config.Config, series *internalrepo.ClickHouseSeries) repository.BenchmarkSource {
	if cfg.Benchmark.Source == "http" {
		timeout := cfg.Benchmark.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client := xhttp.NewClient(xhttp.WithTimeout(timeout))
		return internalrepo.NewHTTPBenchmark(client, cfg.Benchmark.BaseURL, cfg.Benchmark.APIKey)
	}
	return series
}

// ProvideResultPublisher creates the Kafka result publisher, or a no-op
// when eventing is disabled.
func ProvideResultPublisher(cfg *config.Config) (repository.ResultPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideForecasters assembles the strategy set.
func ProvideForecasters(cfg *config.Config) []domsvc.Forecaster {
	seqCfg := forecaster.DefaultSequenceConfig()
	if cfg.Forecast.Lookback > 0 {
		seqCfg.Lookback = cfg.Forecast.Lookback
	}
	if cfg.Forecast.HiddenSize > 0 {
		seqCfg.HiddenSize = cfg.Forecast.HiddenSize
	}
	if cfg.Forecast.MaxEpochs > 0 {
		seqCfg.MaxEpochs = cfg.Forecast.MaxEpochs
	}
	return []domsvc.Forecaster{
		forecaster.NewSequenceForecaster(seqCfg),
		forecaster.NewTrendForecaster(forecaster.DefaultTrendConfig()),
		forecaster.NewSmoothingForecaster(forecaster.DefaultSmoothingConfig()),
	}
}

// ProvideDecomposer builds the seasonal decomposer with the configured
// holiday calendar.
func ProvideDecomposer(cfg *config.Config) *seasonal.Decomposer {
	holidays := make([]seasonal.Holiday, 0, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		holidays = append(holidays, seasonal.Holiday{Name: h.Name, Month: h.Month, Day: h.Day})
	}

	mode := seasonal.Multiplicative
	if cfg.Forecast.SeasonalMode == "additive" {
		mode = seasonal.Additive
	}
	return seasonal.NewDecomposer(
		seasonal.WithMode(mode),
		seasonal.WithCalendar(seasonal.NewCalendar(holidays)),
	)
}

// ProvideOrchestrator creates the prediction pipeline.
func ProvideOrchestrator(
	cfg *config.Config,
	log *applogger.Logger,
	series *internalrepo.ClickHouseSeries,
	benchmarks repository.BenchmarkSource,
	publisher repository.ResultPublisher,
	m repository.Metrics,
	cacheSvc cache.Service,
	forecasters []domsvc.Forecaster,
	decomposer *seasonal.Decomposer,
) *usecase.Orchestrator {
	ocfg := usecase.DefaultOrchestratorConfig()
	if cfg.Forecast.MaxHorizon > 0 {
		ocfg.MaxHorizon = cfg.Forecast.MaxHorizon
	}
	if cfg.Forecast.SeasonalTTL > 0 {
		ocfg.SeasonalTTL = cfg.Forecast.SeasonalTTL
	}
	if cfg.Forecast.ModelVersion != "" {
		ocfg.ModelVersion = cfg.Forecast.ModelVersion
	}
	if cfg.Forecast.Industry != "" {
		ocfg.Industry = cfg.Forecast.Industry
	}
	if cfg.Forecast.ScenarioSeed != 0 {
		ocfg.ScenarioSeed = cfg.Forecast.ScenarioSeed
	}
	ocfg.WeightedAverage = cfg.Forecast.WeightedAverage

	return usecase.NewOrchestrator(ocfg, series, benchmarks, publisher, m, cacheSvc, log, forecasters, decomposer)
}

// ProvideQueue creates the async prediction queue sharing the cache's
// Redis connection.
func ProvideQueue(cfg *config.Config, log *applogger.Logger, redisCache *cache.RedisCache) *queue.RedisQueue {
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	q := queue.NewRedisQueue(log, qc, redisCache.Client(), queue.ModeProducerConsumer,
		queue.WithKeyPrefix("fincast:predictions"))

	if cfg.Logging.Aggregate {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "log.aggregated",
			Publisher:      q,
		})
	}
	return q
}

// ProvideAsyncPredictor creates the async prediction runner and
// registers it on the queue.
func ProvideAsyncPredictor(orch *usecase.Orchestrator, q *queue.RedisQueue, cacheSvc cache.Service, log *applogger.Logger) *usecase.AsyncPredictor {
	async := usecase.NewAsyncPredictor(orch, q, cacheSvc, log)
	q.RegisterJob(async)
	return async
}

// ProvideHandler creates the HTTP handler with health probing.
func ProvideHandler(
	cfg *config.Config,
	log *applogger.Logger,
	orch *usecase.Orchestrator,
	async *usecase.AsyncPredictor,
	chClient *pkgch.Client,
) xhttp.Handler {
	h := api.NewPredictionsHandler(log, orch, async)
	h.SetRateLimit(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
	h.SetHealthCheck(func(c echo.Context) error {
		return chClient.Health(c.Request().Context())
	})
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	chClient *pkgch.Client,
	redisCache *cache.RedisCache,
	q *queue.RedisQueue,
	handler xhttp.Handler,
	publisher repository.ResultPublisher,
	m repository.Metrics,
) *server.App {
	app := server.New(cfg, log, chClient, redisCache.Client(), q, handler)
	app.AddCloser(publisher.Close)
	if cfg.Metrics.Enabled && q != nil {
		app.AddBackground(func(ctx context.Context) {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					depth, err := q.Depth(ctx)
					if err != nil {
						continue
					}
					m.RecordQueueDepth(int(depth))
				}
			}
		})
	}
	return app
}
