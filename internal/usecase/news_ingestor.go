package usecase

import (
	"context"
	"sync"
	"time"

	"Kessan/internal/datasource"
	"Kessan/internal/domain/repository"
	applogger "Kessan/pkg/logger"
)

// IngestorOption customizes the news ingestor.
type IngestorOption func(*NewsIngestor)

func WithPollInterval(d time.Duration) IngestorOption {
	return func(n *NewsIngestor) {
		if d > 0 {
			n.pollInterval = d
		}
	}
}

func WithMaxPerSource(max int) IngestorOption {
	return func(n *NewsIngestor) {
		if max > 0 {
			n.maxPerSource = max
		}
	}
}

// WithSourceGap sets the minimum spacing between polls of one source.
func WithSourceGap(d time.Duration) IngestorOption {
	return func(n *NewsIngestor) {
		if d > 0 {
			n.sourceGap = d
		}
	}
}

// NewsIngestor polls every healthy news adapter, drops articles already
// seen by content hash, and fans the rest out on Kafka.
type NewsIngestor struct {
	logger    *applogger.Logger
	metrics   repository.Metrics
	registry  *datasource.Registry
	news      repository.NewsStore
	publisher repository.Publisher

	pollInterval time.Duration
	maxPerSource int
	sourceGap    time.Duration

	mu         sync.Mutex
	lastPolled map[string]time.Time
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

func NewNewsIngestor(
	lgr *applogger.Logger,
	metrics repository.Metrics,
	registry *datasource.Registry,
	news repository.NewsStore,
	publisher repository.Publisher,
	opts ...IngestorOption,
) *NewsIngestor {
	n := &NewsIngestor{
		logger:       lgr,
		metrics:      metrics,
		registry:     registry,
		news:         news,
		publisher:    publisher,
		pollInterval: 5 * time.Minute,
		maxPerSource: 20,
		sourceGap:    time.Minute,
		lastPolled:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start launches the polling loop. Idempotent while running.
func (n *NewsIngestor) Start() {
	n.mu.Lock()
	if n.loopCancel != nil {
		n.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.loopCancel = cancel
	n.loopDone = make(chan struct{})
	n.mu.Unlock()

	go n.loop(ctx)
	n.logger.Info("news ingestor started",
		applogger.Duration("poll_interval", n.pollInterval),
		applogger.Int("max_per_source", n.maxPerSource))
}

// Stop cancels the loop and waits for the in-flight iteration.
func (n *NewsIngestor) Stop() {
	n.mu.Lock()
	cancel := n.loopCancel
	done := n.loopDone
	n.loopCancel = nil
	n.loopDone = nil
	n.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	n.logger.Info("news ingestor stopped")
}

func (n *NewsIngestor) loop(ctx context.Context) {
	defer close(n.loopDone)

	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	n.IngestOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.IngestOnce(ctx)
		}
	}
}

// IngestOnce polls every eligible news source one time and returns how
// many new articles were published.
func (n *NewsIngestor) IngestOnce(ctx context.Context) int {
	published := 0
	for _, adapter := range n.registry.HealthyAdapters(datasource.CapabilityNews) {
		fetcher, ok := adapter.(datasource.NewsFetcher)
		if !ok {
			continue
		}
		if !n.shouldPoll(adapter.Name()) {
			continue
		}
		published += n.ingestSource(ctx, fetcher)

		select {
		case <-ctx.Done():
			return published
		default:
		}
	}
	return published
}

func (n *NewsIngestor) ingestSource(ctx context.Context, fetcher datasource.NewsFetcher) int {
	source := fetcher.Name()
	articles, err := fetcher.FetchNews(ctx, n.maxPerSource)
	if err != nil {
		if datasource.IsRateLimit(err) {
			n.logger.Warn("news source rate limited", applogger.String("source", source))
			n.metrics.RecordProviderRequest(source, "fetch_news", repository.OutcomeRateLimited)
			return 0
		}
		n.logger.Error("news fetch failed",
			applogger.String("source", source),
			applogger.Error(err))
		n.metrics.RecordProviderRequest(source, "fetch_news", repository.OutcomeError)
		return 0
	}
	n.metrics.RecordProviderRequest(source, "fetch_news", repository.OutcomeOK)

	published := 0
	for _, article := range articles {
		exists, err := n.news.ExistsByHash(ctx, article.ContentHash)
		if err != nil {
			n.logger.Error("dedupe lookup failed",
				applogger.String("source", source),
				applogger.Error(err))
			n.metrics.RecordError("news_dedupe")
			continue
		}
		if exists {
			continue
		}
		if err := n.publisher.PublishArticle(ctx, article); err != nil {
			n.logger.Error("article publish failed",
				applogger.String("source", source),
				applogger.String("article_id", article.ID),
				applogger.Error(err))
			n.metrics.RecordError("news_publish")
			continue
		}
		published++
	}

	if published > 0 {
		n.logger.Info("articles ingested",
			applogger.String("source", source),
			applogger.Int("fetched", len(articles)),
			applogger.Int("published", published))
	}
	return published
}

// shouldPoll enforces the per-source minimum gap.
func (n *NewsIngestor) shouldPoll(source string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	if last, ok := n.lastPolled[source]; ok && now.Sub(last) < n.sourceGap {
		return false
	}
	n.lastPolled[source] = now
	return true
}
