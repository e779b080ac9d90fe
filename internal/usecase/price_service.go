package usecase

import (
	"context"
	"fmt"
	"time"

	"Kessan/internal/datasource"
	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	"Kessan/pkg/cache"
	applogger "Kessan/pkg/logger"
)

const (
	quoteCachePrefix  = "kessan:quote"
	barsCachePrefix   = "kessan:bars"
	searchCachePrefix = "kessan:search"
)

// QuoteBroadcaster pushes live quotes to subscribed clients.
// Implemented by the websocket hub.
type QuoteBroadcaster interface {
	BroadcastQuote(quote *models.Quote)
}

// PriceServiceOption customizes the price service.
type PriceServiceOption func(*PriceService)

func WithQuoteTTL(ttl time.Duration) PriceServiceOption {
	return func(s *PriceService) {
		if ttl > 0 {
			s.quoteTTL = ttl
		}
	}
}

func WithHistoricalTTL(ttl time.Duration) PriceServiceOption {
	return func(s *PriceService) {
		if ttl > 0 {
			s.historicalTTL = ttl
		}
	}
}

func WithBroadcaster(b QuoteBroadcaster) PriceServiceOption {
	return func(s *PriceService) { s.broadcaster = b }
}

// PriceService serves quotes and historical bars through the data source
// registry, caching reads and persisting fetched bars.
type PriceService struct {
	logger   *applogger.Logger
	metrics  repository.Metrics
	registry *datasource.Registry
	cache    cache.Service
	prices   repository.PriceStore

	broadcaster   QuoteBroadcaster
	quoteTTL      time.Duration
	historicalTTL time.Duration
}

func NewPriceService(
	lgr *applogger.Logger,
	metrics repository.Metrics,
	registry *datasource.Registry,
	cacheSvc cache.Service,
	prices repository.PriceStore,
	opts ...PriceServiceOption,
) *PriceService {
	s := &PriceService{
		logger:        lgr,
		metrics:       metrics,
		registry:      registry,
		cache:         cacheSvc,
		prices:        prices,
		quoteTTL:      15 * time.Second,
		historicalTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentPrice returns the latest quote for a ticker, trying cache first
// and falling through the adapter priority chain on miss.
func (s *PriceService) CurrentPrice(ctx context.Context, ticker string) (*models.Quote, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordLatency("price_current", time.Since(start).Seconds())
	}()

	if s.cache != nil {
		var q models.Quote
		if err := s.cache.Get(ctx, cache.GenerateKey(quoteCachePrefix, ticker), &q); err == nil && q.Ticker != "" {
			return &q, nil
		}
	}

	result, err := s.registry.ExecuteWithFailover(ctx, datasource.CapabilityStockPrice,
		func(ctx context.Context, a datasource.Adapter) (any, error) {
			return a.CurrentPrice(ctx, ticker)
		})
	if err != nil {
		return nil, err
	}
	quote, ok := result.(*models.Quote)
	if !ok || quote == nil {
		return nil, fmt.Errorf("unexpected quote result for %s", ticker)
	}
	quote.Ticker = ticker

	s.metrics.RecordLastPrice(ticker, quote.Price)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastQuote(quote)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.GenerateKey(quoteCachePrefix, ticker), quote, s.quoteTTL); err != nil {
			s.logger.Debug("failed to cache quote",
				applogger.String("ticker", ticker),
				applogger.Error(err))
		}
	}
	return quote, nil
}

// Historical returns OHLCV bars from the providers, persisting whatever
// was fetched so later reads can come from the time series store.
func (s *PriceService) Historical(ctx context.Context, ticker string, from, to time.Time, interval repository.Interval, limit int) ([]*models.PriceBar, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordLatency("price_historical", time.Since(start).Seconds())
	}()

	cacheKey := cache.GenerateKeyWithParams(barsCachePrefix, ticker, interval, from.Unix(), to.Unix())
	if s.cache != nil {
		var bars []*models.PriceBar
		if err := s.cache.Get(ctx, cacheKey, &bars); err == nil && len(bars) > 0 {
			return clipBars(bars, limit), nil
		}
	}

	result, err := s.registry.ExecuteWithFailover(ctx, datasource.CapabilityStockPrice,
		func(ctx context.Context, a datasource.Adapter) (any, error) {
			return a.HistoricalPrices(ctx, ticker, from, to, interval)
		})
	if err != nil {
		return nil, err
	}
	bars, ok := result.([]*models.PriceBar)
	if !ok {
		return nil, fmt.Errorf("unexpected historical result for %s", ticker)
	}

	if s.prices != nil && len(bars) > 0 {
		if err := s.prices.StoreBatch(ctx, bars); err != nil {
			s.logger.Error("failed to persist price bars",
				applogger.String("ticker", ticker),
				applogger.Int("bars", len(bars)),
				applogger.Error(err))
			s.metrics.RecordError("price_store")
		}
	}
	if s.cache != nil && len(bars) > 0 {
		if err := s.cache.Set(ctx, cacheKey, bars, s.historicalTTL); err != nil {
			s.logger.Debug("failed to cache bars",
				applogger.String("ticker", ticker),
				applogger.Error(err))
		}
	}
	return clipBars(bars, limit), nil
}

// StoredHistory reads bars straight from the time series store without
// touching the providers.
func (s *PriceService) StoredHistory(ctx context.Context, ticker string, from, to time.Time, interval repository.Interval, limit int) ([]*models.PriceBar, error) {
	return s.prices.Query(ctx, ticker, from, to, interval, limit)
}

// Search resolves free text to candidate symbols.
func (s *PriceService) Search(ctx context.Context, query string, limit int) ([]*models.SymbolMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	cacheKey := cache.GenerateKey(searchCachePrefix, query)
	if s.cache != nil {
		var matches []*models.SymbolMatch
		if err := s.cache.Get(ctx, cacheKey, &matches); err == nil && len(matches) > 0 {
			return clipMatches(matches, limit), nil
		}
	}

	result, err := s.registry.ExecuteWithFailover(ctx, datasource.CapabilityStockPrice,
		func(ctx context.Context, a datasource.Adapter) (any, error) {
			return a.SearchSymbols(ctx, query)
		})
	if err != nil {
		return nil, err
	}
	matches, ok := result.([]*models.SymbolMatch)
	if !ok {
		return nil, fmt.Errorf("unexpected search result for %q", query)
	}

	if s.cache != nil && len(matches) > 0 {
		if err := s.cache.Set(ctx, cacheKey, matches, 10*time.Minute); err != nil {
			s.logger.Debug("failed to cache search results",
				applogger.String("query", query),
				applogger.Error(err))
		}
	}
	return clipMatches(matches, limit), nil
}

func clipBars(bars []*models.PriceBar, limit int) []*models.PriceBar {
	if limit > 0 && len(bars) > limit {
		return bars[len(bars)-limit:]
	}
	return bars
}

func clipMatches(matches []*models.SymbolMatch, limit int) []*models.SymbolMatch {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}
