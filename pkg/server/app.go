package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Kessan/internal/alerting"
	"Kessan/internal/datasource"
	"Kessan/internal/domain/repository"
	"Kessan/internal/usecase"
	pkgcache "Kessan/pkg/cache"
	pkgch "Kessan/pkg/clickhouse"
	"Kessan/pkg/config"
	xhttp "Kessan/pkg/http"
	pkgkafka "Kessan/pkg/kafka"
	applogger "Kessan/pkg/logger"
	pkgpg "Kessan/pkg/postgres"
	pkgqueue "Kessan/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	registry   *datasource.Registry
	ingestor   *usecase.NewsIngestor
	checker    *alerting.Checker
	consumer   *pkgkafka.Consumer
	articles   *usecase.ArticlesHandler
	jobQueue   *pkgqueue.RedisQueue
	publisher  repository.Publisher
	pgClient   *pkgpg.Client
	chClient   *pkgch.Client
	redis      *pkgcache.RedisCache
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	lgr *applogger.Logger,
	registry *datasource.Registry,
	ingestor *usecase.NewsIngestor,
	checker *alerting.Checker,
	consumer *pkgkafka.Consumer,
	articles *usecase.ArticlesHandler,
	jobQueue *pkgqueue.RedisQueue,
	publisher repository.Publisher,
	pgClient *pkgpg.Client,
	chClient *pkgch.Client,
	redis *pkgcache.RedisCache,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:        cfg,
		logger:     lgr,
		registry:   registry,
		ingestor:   ingestor,
		checker:    checker,
		consumer:   consumer,
		articles:   articles,
		jobQueue:   jobQueue,
		publisher:  publisher,
		pgClient:   pgClient,
		chClient:   chClient,
		redis:      redis,
		httpServer: httpServer,
	}
}

// Run starts every component and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.registry.StartHealthMonitor(a.cfg.DataSources.HealthCheckInterval)
	a.logger.Info("health monitor started",
		applogger.Duration("interval", a.cfg.DataSources.HealthCheckInterval))

	if a.jobQueue != nil {
		if err := a.jobQueue.Start(); err != nil {
			a.logger.Error("job queue start error", applogger.Error(err))
			return err
		}
	}

	if a.consumer != nil && a.articles != nil {
		a.consumer.RegisterHandler(a.articles)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.logger.Info("kafka consumer started", applogger.String("topic", a.articles.Topic()))
	}

	a.ingestor.Start()
	a.logger.Info("news ingestor started")

	if a.checker != nil {
		a.checker.Start()
		a.logger.Info("alert checker started")
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	a.logger.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops components in the reverse order of startup so the
// intake side drains before the stores close.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.checker != nil {
		a.checker.Stop()
	}
	a.ingestor.Stop()
	a.registry.StopHealthMonitor()

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.jobQueue != nil {
		if err := a.jobQueue.Stop(shutdownCtx); err != nil {
			a.logger.Warn("job queue stop error", applogger.Error(err))
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.pgClient != nil {
		if err := a.pgClient.Close(); err != nil {
			a.logger.Warn("postgres close error", applogger.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
