package di

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"Kessan/internal/alerting"
	"Kessan/internal/analysis"
	"Kessan/internal/datasource"
	"Kessan/internal/domain/repository"
	"Kessan/internal/handler/api"
	mid "Kessan/internal/middleware"
	"Kessan/internal/newsmap"
	internalrepo "Kessan/internal/repository"
	"Kessan/internal/usecase"
	pkgcache "Kessan/pkg/cache"
	pkgch "Kessan/pkg/clickhouse"
	"Kessan/pkg/config"
	xhttp "Kessan/pkg/http"
	pkgkafka "Kessan/pkg/kafka"
	applogger "Kessan/pkg/logger"
	"Kessan/pkg/metrics"
	pkgpg "Kessan/pkg/postgres"
	pkgqueue "Kessan/pkg/queue"
	"Kessan/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvidePostgresClient creates the Postgres client and applies the schema.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, error) {
	client, err := pkgpg.NewClient(
		pkgpg.WithHost(cfg.Postgres.Host),
		pkgpg.WithPort(cfg.Postgres.Port),
		pkgpg.WithDatabase(cfg.Postgres.Database),
		pkgpg.WithCredentials(cfg.Postgres.User, cfg.Postgres.Password),
		pkgpg.WithSSLMode(cfg.Postgres.SSLMode),
		pkgpg.WithMaxConnections(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns),
		pkgpg.WithConnLifetime(cfg.Postgres.ConnLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.PostgresSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return client, nil
}

// ProvideClickHouseClient creates the ClickHouse client.
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
	return client, nil
}

// ProvideRedisCache creates the Redis cache backing quotas, quotes and mapping.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	return pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
}

// ProvideCacheService fronts Redis with a small in-process layer for
// the hot quote and stock list reads.
func ProvideCacheService(rc *pkgcache.RedisCache) pkgcache.Service {
	return pkgcache.NewLayeredCache(rc,
		pkgcache.WithLayeredMemorySize(2000),
		pkgcache.WithLayeredL1TTL(10*time.Second),
	)
}

// ProvideKafkaProducer creates the Kafka producer for the article stream.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
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

// ProvideKafkaConsumer creates the consumer for the article stream.
func ProvideKafkaConsumer(cfg *config.Config, lgr *applogger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook())
	return consumer, nil
}

// ProvideStockStore creates the Postgres stock master store.
func ProvideStockStore(pg *pkgpg.Client) repository.StockStore {
	return internalrepo.NewPGStockStore(pg)
}

// ProvideNewsStore creates the Postgres article store.
func ProvideNewsStore(pg *pkgpg.Client) repository.NewsStore {
	return internalrepo.NewPGNewsStore(pg)
}

// ProvideLinkStore creates the Postgres stock-news link store.
func ProvideLinkStore(pg *pkgpg.Client) repository.LinkStore {
	return internalrepo.NewPGLinkStore(pg)
}

// ProvideAnalysisStore creates the Postgres analysis store.
func ProvideAnalysisStore(pg *pkgpg.Client) repository.AnalysisStore {
	return internalrepo.NewPGAnalysisStore(pg)
}

// ProvideAlertStore creates the Postgres alert event store.
func ProvideAlertStore(pg *pkgpg.Client) repository.AlertStore {
	return internalrepo.NewPGAlertStore(pg)
}

// ProvidePriceStore creates the ClickHouse bar store and its tables.
func ProvidePriceStore(ch *pkgch.Client, lgr *applogger.Logger) (repository.PriceStore, error) {
	store := internalrepo.NewCHPriceStore(ch)
	store.SetLogger(lgr)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvidePublisher creates the Kafka article publisher.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	topic := cfg.Kafka.ArticleTopic
	if topic == "" {
		topic = internalrepo.DefaultArticleTopic
	}
	return internalrepo.NewKafkaPublisher(producer, topic)
}

// ProvideRegistry builds the data source registry and registers every
// enabled adapter from config.
func ProvideRegistry(cfg *config.Config, lgr *applogger.Logger, m repository.Metrics) (*datasource.Registry, error) {
	reg := datasource.NewRegistry(lgr, m,
		datasource.WithFailoverEnabled(cfg.DataSources.FailoverEnabled),
		datasource.WithHealthCacheTTL(cfg.DataSources.HealthCacheTTL),
		datasource.WithBreakerThreshold(cfg.DataSources.BreakerThreshold),
		datasource.WithBreakerResetTimeout(cfg.DataSources.BreakerResetTimeout),
	)

	ds := cfg.DataSources
	if ds.Yahoo.Enabled {
		var opts []datasource.YahooOption
		if ds.Yahoo.BaseURL != "" {
			opts = append(opts, datasource.WithYahooBaseURL(ds.Yahoo.BaseURL))
		}
		a := datasource.NewYahooFinance(ds.Yahoo.Priority, ds.Yahoo.Timeout, ds.Yahoo.PerMinute, ds.Yahoo.PerHour, opts...)
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	if ds.AlphaVantage.Enabled {
		var opts []datasource.AlphaVantageOption
		if ds.AlphaVantage.BaseURL != "" {
			opts = append(opts, datasource.WithAlphaVantageBaseURL(ds.AlphaVantage.BaseURL))
		}
		a := datasource.NewAlphaVantage(ds.AlphaVantage.APIKey, ds.AlphaVantage.Priority, ds.AlphaVantage.Timeout,
			ds.AlphaVantage.PerMinute, ds.AlphaVantage.PerDay, opts...)
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	if ds.EDINET.Enabled {
		var opts []datasource.EDINETOption
		if ds.EDINET.BaseURL != "" {
			opts = append(opts, datasource.WithEDINETBaseURL(ds.EDINET.BaseURL))
		}
		a := datasource.NewEDINET(ds.EDINET.APIKey, ds.EDINET.Priority, ds.EDINET.Timeout, ds.EDINET.PerMinute, opts...)
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	if ds.NewsAPI.Enabled {
		var opts []datasource.NewsAPIOption
		if ds.NewsAPI.BaseURL != "" {
			opts = append(opts, datasource.WithNewsAPIBaseURL(ds.NewsAPI.BaseURL))
		}
		a := datasource.NewNewsAPI(ds.NewsAPI.APIKey, ds.NewsAPI.Priority, ds.NewsAPI.Timeout,
			ds.NewsAPI.PerHour, ds.NewsAPI.PerDay, opts...)
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	if ds.Kabutan.Enabled {
		var opts []datasource.KabutanOption
		if ds.Kabutan.BaseURL != "" {
			opts = append(opts, datasource.WithKabutanBaseURL(ds.Kabutan.BaseURL))
		}
		a := datasource.NewKabutan(ds.Kabutan.Priority, ds.Kabutan.Timeout, ds.Kabutan.PerMinute, opts...)
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// ProvideMapper creates the news-to-stock mapping service.
func ProvideMapper(
	cfg *config.Config,
	lgr *applogger.Logger,
	m repository.Metrics,
	stocks repository.StockStore,
	news repository.NewsStore,
	links repository.LinkStore,
) *newsmap.Service {
	return newsmap.NewService(lgr, m, stocks, news, links,
		newsmap.WithMinRelevance(cfg.Mapping.MinRelevance),
		newsmap.WithStockCacheTTL(cfg.Mapping.StockCacheTTL),
		newsmap.WithWeights(newsmap.Weights{
			Ticker: cfg.Mapping.TickerWeight,
			Name:   cfg.Mapping.NameWeight,
			Report: cfg.Mapping.ReportWeight,
			Sector: cfg.Mapping.SectorWeight,
		}),
	)
}

// ProvideAnalysisGenerator creates the LLM client for research notes.
func ProvideAnalysisGenerator(cfg *config.Config) analysis.Generator {
	return analysis.NewClient(analysis.ClientConfig{
		APIKey:      cfg.Analysis.APIKey,
		BaseURL:     cfg.Analysis.BaseURL,
		Model:       cfg.Analysis.Model,
		MaxTokens:   cfg.Analysis.MaxTokens,
		Temperature: cfg.Analysis.Temperature,
	})
}

// ProvideAnalysisService creates the analysis use case.
func ProvideAnalysisService(
	cfg *config.Config,
	lgr *applogger.Logger,
	m repository.Metrics,
	gen analysis.Generator,
	stocks repository.StockStore,
	prices repository.PriceStore,
	mapper *newsmap.Service,
	store repository.AnalysisStore,
	cacheSvc pkgcache.Service,
) *analysis.Service {
	var opts []analysis.ServiceOption
	if cfg.Analysis.CacheTTL > 0 {
		opts = append(opts, analysis.WithCacheTTL(cfg.Analysis.CacheTTL))
	}
	return analysis.NewService(lgr, m, gen, stocks, prices, mapper, store, cacheSvc, opts...)
}

// ProvideQuotesHub creates the WebSocket quote hub.
func ProvideQuotesHub(lgr *applogger.Logger) *api.QuotesHub {
	return api.NewQuotesHub(lgr)
}

// ProvidePriceService creates the price use case with live quote fan-out.
func ProvidePriceService(
	lgr *applogger.Logger,
	m repository.Metrics,
	registry *datasource.Registry,
	cacheSvc pkgcache.Service,
	prices repository.PriceStore,
	hub *api.QuotesHub,
) *usecase.PriceService {
	return usecase.NewPriceService(lgr, m, registry, cacheSvc, prices,
		usecase.WithBroadcaster(hub))
}

// ProvideNewsIngestor creates the polling ingest pipeline.
func ProvideNewsIngestor(
	cfg *config.Config,
	lgr *applogger.Logger,
	m repository.Metrics,
	registry *datasource.Registry,
	news repository.NewsStore,
	publisher repository.Publisher,
) *usecase.NewsIngestor {
	var opts []usecase.IngestorOption
	if cfg.News.PollInterval > 0 {
		opts = append(opts, usecase.WithPollInterval(cfg.News.PollInterval))
	}
	if cfg.News.MaxPerSource > 0 {
		opts = append(opts, usecase.WithMaxPerSource(cfg.News.MaxPerSource))
	}
	return usecase.NewNewsIngestor(lgr, m, registry, news, publisher, opts...)
}

// ProvideMappingJob creates the queue job that links articles to stocks.
func ProvideMappingJob(lgr *applogger.Logger, news repository.NewsStore, mapper *newsmap.Service) *usecase.MappingJob {
	return usecase.NewMappingJob(lgr, news, mapper)
}

// ProvideJobQueue creates the Redis-backed job queue running the mapping
// workers in-process.
func ProvideJobQueue(cfg *config.Config, lgr *applogger.Logger, rc *pkgcache.RedisCache, job *usecase.MappingJob) *pkgqueue.RedisQueue {
	workers := cfg.Mapping.QueueWorkers
	if workers <= 0 {
		workers = 2
	}
	q := pkgqueue.NewRedisQueue(lgr, &pkgqueue.Config{
		Workers:    workers,
		RetryLimit: 3,
		RetryDelay: 10 * time.Second,
	}, rc.Client(), pkgqueue.ModeProducerConsumer)
	q.RegisterJob(job)
	return q
}

// ProvideArticlesHandler creates the Kafka handler persisting articles.
func ProvideArticlesHandler(
	cfg *config.Config,
	lgr *applogger.Logger,
	m repository.Metrics,
	news repository.NewsStore,
	jobs *pkgqueue.RedisQueue,
) *usecase.ArticlesHandler {
	topic := cfg.Kafka.ArticleTopic
	if topic == "" {
		topic = internalrepo.DefaultArticleTopic
	}
	return usecase.NewArticlesHandler(lgr, m, news, jobs, topic)
}

// ProvideChecker creates the alert checker with the standard business
// metrics and baseline rules. Returns nil when alerting is disabled.
func ProvideChecker(
	cfg *config.Config,
	lgr *applogger.Logger,
	m repository.Metrics,
	store repository.AlertStore,
	links repository.LinkStore,
	news repository.NewsStore,
	registry *datasource.Registry,
) *alerting.Checker {
	if !cfg.Alerting.Enabled {
		return nil
	}

	var notifiers []alerting.Notifier
	if cfg.Alerting.SlackWebhook != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(
			xhttp.NewClient(xhttp.WithTimeout(10*time.Second)), cfg.Alerting.SlackWebhook, "slack"))
	}
	if cfg.Alerting.PagerWebhook != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(
			xhttp.NewClient(xhttp.WithTimeout(10*time.Second)), cfg.Alerting.PagerWebhook, "pager"))
	}
	notifier := alerting.Notifier(alerting.NewMultiNotifier(lgr, notifiers...))

	checker := alerting.NewChecker(lgr, m, store, notifier,
		alerting.WithCheckInterval(cfg.Alerting.CheckInterval),
		alerting.WithDefaultCooldown(cfg.Alerting.Cooldown),
		alerting.WithHistoryCap(cfg.Alerting.HistoryWindow),
	)
	alerting.RegisterStandardMetrics(checker, links, news, registry)

	checker.AddRule(alerting.Rule{
		Name:      "provider_health_low",
		Metric:    "provider_healthy_ratio",
		Type:      alerting.RuleThresholdBelow,
		Threshold: 0.5,
	})
	checker.AddRule(alerting.Rule{
		Name:      "news_link_rate_low",
		Metric:    "news_link_rate",
		Type:      alerting.RuleThresholdBelow,
		Threshold: 0.2,
	})
	checker.AddRule(alerting.Rule{
		Name:      "news_relevance_shift",
		Metric:    "news_avg_relevance",
		Type:      alerting.RuleZScore,
		Threshold: 3,
		Window:    30,
	})
	checker.AddRule(alerting.Rule{
		Name:      "news_volume_spike",
		Metric:    "news_article_count",
		Type:      alerting.RulePctChange,
		Threshold: 50,
		Window:    10,
	})
	return checker
}

// ProvideAPIMiddlewares builds the auth, quota and input filtering chain
// applied to the versioned API routes.
func ProvideAPIMiddlewares(
	cfg *config.Config,
	lgr *applogger.Logger,
	m repository.Metrics,
	cacheSvc pkgcache.Service,
) []echo.MiddlewareFunc {
	chain := []echo.MiddlewareFunc{
		mid.NewSecurityFilter(lgr, m).Middleware(),
		mid.NewAuth(cfg.Auth.APIKeys, cfg.Auth.JWTSecret).Middleware(),
	}
	if cfg.Quota.Enabled {
		tiers := make(map[string]mid.TierLimit, len(cfg.Quota.Tiers))
		for name, t := range cfg.Quota.Tiers {
			tiers[name] = mid.TierLimit{Requests: t.Requests}
		}
		chain = append(chain, mid.NewQuota(lgr, m, cacheSvc, cfg.Quota.Window, tiers).Middleware())
	}
	return chain
}

// ProvideHTTPHandler assembles every route group into one handler.
func ProvideHTTPHandler(
	lgr *applogger.Logger,
	prices *usecase.PriceService,
	mapper *newsmap.Service,
	analyzer *analysis.Service,
	stocks repository.StockStore,
	priceStore repository.PriceStore,
	registry *datasource.Registry,
	jobs *pkgqueue.RedisQueue,
	cacheSvc pkgcache.Service,
	hub *api.QuotesHub,
	middlewares []echo.MiddlewareFunc,
) xhttp.Handler {
	return xhttp.HandlerGroup{
		api.NewStocksHandler(lgr, prices, mapper, analyzer, stocks, middlewares...),
		api.NewDatasourcesHandler(lgr, registry, middlewares...),
		api.NewHealthHandler(lgr, stocks, priceStore, registry, jobs, cacheSvc),
		hub,
	}
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, lgr *applogger.Logger, handler xhttp.Handler) *xhttp.Server {
	return xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(lgr),
	)
}

// ProvideApp creates the application with its full lifecycle.
func ProvideApp(
	cfg *config.Config,
	lgr *applogger.Logger,
	registry *datasource.Registry,
	ingestor *usecase.NewsIngestor,
	checker *alerting.Checker,
	consumer *pkgkafka.Consumer,
	articles *usecase.ArticlesHandler,
	jobQueue *pkgqueue.RedisQueue,
	publisher repository.Publisher,
	pg *pkgpg.Client,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, lgr, registry, ingestor, checker, consumer, articles,
		jobQueue, publisher, pg, ch, rc, httpServer)
}
