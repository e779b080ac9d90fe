package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	"Kessan/pkg/cache"
	applogger "Kessan/pkg/logger"
	"Kessan/pkg/util"
)

const cacheKeyPrefix = "kessan:analysis"

// NewsProvider supplies relevance-linked articles for one stock.
// Implemented by the news mapping service.
type NewsProvider interface {
	NewsForStock(ctx context.Context, ticker string, minRelevance float64, limit int) []*models.NewsArticle
}

// ServiceOption customizes the analysis service.
type ServiceOption func(*Service)

// WithCacheTTL sets how long a generated note stays fresh.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithLookback sets how far back price history feeds the prompt.
func WithLookback(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.lookback = d
		}
	}
}

// WithNewsLimit caps how many linked headlines feed the prompt.
func WithNewsLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.newsLimit = n
		}
	}
}

// Service generates and caches research notes per stock.
type Service struct {
	logger    *applogger.Logger
	metrics   repository.Metrics
	generator Generator
	stocks    repository.StockStore
	prices    repository.PriceStore
	news      NewsProvider
	store     repository.AnalysisStore
	cache     cache.Service

	cacheTTL  time.Duration
	lookback  time.Duration
	newsLimit int
	now       func() time.Time
}

func NewService(
	lgr *applogger.Logger,
	metrics repository.Metrics,
	generator Generator,
	stocks repository.StockStore,
	prices repository.PriceStore,
	news NewsProvider,
	store repository.AnalysisStore,
	cacheSvc cache.Service,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		logger:    lgr,
		metrics:   metrics,
		generator: generator,
		stocks:    stocks,
		prices:    prices,
		news:      news,
		store:     store,
		cache:     cacheSvc,
		cacheTTL:  6 * time.Hour,
		lookback:  30 * 24 * time.Hour,
		newsLimit: 10,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze returns the research note for a stock, serving a fresh cached
// note unless refresh forces regeneration.
func (s *Service) Analyze(ctx context.Context, ticker string, refresh bool) (*models.Analysis, error) {
	stock, err := s.stocks.GetByTicker(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("lookup stock %s: %w", ticker, err)
	}

	if !refresh {
		if cached := s.lookupCached(ctx, ticker); cached != nil {
			return cached, nil
		}
	}

	prompt := s.buildPrompt(ctx, stock)

	insight, usage, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.metrics.RecordError("analysis_generate")
		return nil, fmt.Errorf("generate analysis for %s: %w", ticker, err)
	}

	a := &models.Analysis{
		ID:         uuid.NewString(),
		Ticker:     ticker,
		Model:      s.generator.Model(),
		Summary:    insight.Summary,
		Outlook:    insight.Outlook,
		Risks:      insight.Risks,
		Confidence: insight.Confidence,
		CreatedAt:  s.now().UTC(),
	}
	if usage != nil {
		a.PromptTokens = usage.PromptTokens
		a.CompletionTokens = usage.CompletionTokens
		s.metrics.RecordAnalysisTokens("prompt", usage.PromptTokens)
		s.metrics.RecordAnalysisTokens("completion", usage.CompletionTokens)
	}

	if err := s.store.Insert(ctx, a); err != nil {
		s.logger.Error("failed to persist analysis",
			applogger.String("ticker", ticker),
			applogger.Error(err))
		s.metrics.RecordError("analysis_store")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.GenerateKey(cacheKeyPrefix, ticker), a, s.cacheTTL); err != nil {
			s.logger.Debug("failed to cache analysis",
				applogger.String("ticker", ticker),
				applogger.Error(err))
		}
	}

	s.logger.Info("analysis generated",
		applogger.String("ticker", ticker),
		applogger.String("outlook", a.Outlook),
		applogger.Float64("confidence", a.Confidence),
		applogger.Int64("prompt_tokens", a.PromptTokens),
		applogger.Int64("completion_tokens", a.CompletionTokens))

	return a, nil
}

// lookupCached checks Redis first, then the durable store, for a note
// generated within the freshness window.
func (s *Service) lookupCached(ctx context.Context, ticker string) *models.Analysis {
	if s.cache != nil {
		var a models.Analysis
		if err := s.cache.Get(ctx, cache.GenerateKey(cacheKeyPrefix, ticker), &a); err == nil && a.Ticker == ticker {
			return &a
		}
	}

	notBefore := s.now().Add(-s.cacheTTL)
	a, err := s.store.GetLatest(ctx, ticker, notBefore)
	if err != nil || a == nil {
		return nil
	}
	if s.cache != nil {
		ttl := s.cacheTTL - s.now().Sub(a.CreatedAt)
		if ttl > time.Minute {
			_ = s.cache.Set(ctx, cache.GenerateKey(cacheKeyPrefix, ticker), a, ttl)
		}
	}
	return a
}

func (s *Service) buildPrompt(ctx context.Context, stock *models.Stock) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stock: %s (%s)\n", stock.Name, stock.Ticker)
	if stock.Sector != "" {
		fmt.Fprintf(&b, "Sector: %s\n", stock.Sector)
	}
	if stock.Market != "" {
		fmt.Fprintf(&b, "Market: %s\n", stock.Market)
	}

	now := s.now().UTC()
	bars, err := s.prices.Query(ctx, stock.Ticker, now.Add(-s.lookback), now, repository.Interval1d, 90)
	if err != nil {
		s.logger.Warn("price history unavailable for analysis",
			applogger.String("ticker", stock.Ticker),
			applogger.Error(err))
	}
	if len(bars) > 0 {
		first, last := bars[0], bars[len(bars)-1]
		b.WriteString("\nRecent daily closes (oldest first):\n")
		for _, bar := range bars {
			fmt.Fprintf(&b, "%s close=%.2f volume=%.0f\n",
				util.JSTDate(bar.Bucket).Format("2006-01-02"), bar.Close, bar.Volume)
		}
		if first.Close > 0 {
			fmt.Fprintf(&b, "Period change: %.2f%%\n", (last.Close-first.Close)/first.Close*100)
		}
	}

	if s.news != nil {
		articles := s.news.NewsForStock(ctx, stock.Ticker, 0, s.newsLimit)
		if len(articles) > 0 {
			b.WriteString("\nRecent linked headlines:\n")
			for _, article := range articles {
				fmt.Fprintf(&b, "- [%s] %s\n", util.JSTDate(article.PublishedAt).Format("2006-01-02"), article.Title)
			}
		}
	}

	return b.String()
}
