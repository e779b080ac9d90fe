package newsmap

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	applogger "Kessan/pkg/logger"
)

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithMinRelevance sets the persistence threshold.
func WithMinRelevance(min float64) ServiceOption {
	return func(s *Service) {
		if min > 0 {
			s.minRelevance = min
		}
	}
}

// WithStockCacheTTL sets how long the stock master list is cached.
func WithStockCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithWeights sets the scoring weights.
func WithWeights(w Weights) ServiceOption {
	return func(s *Service) {
		s.scorer = NewScorer(w)
	}
}

// Match pairs a stock with its relevance to one article.
type Match struct {
	Stock *models.Stock
	Score float64
	Terms []string
}

// BatchResult summarizes one mapping batch.
type BatchResult struct {
	Processed int
	Linked    int
	Errors    int
}

// Service maps news articles to the stocks they are about. Persistence
// failures are non-fatal: they are logged and degrade to empty results so
// a database hiccup never stalls the ingest pipeline.
type Service struct {
	logger  *applogger.Logger
	metrics repository.Metrics
	stocks  repository.StockStore
	news    repository.NewsStore
	links   repository.LinkStore
	scorer  *Scorer

	minRelevance float64
	cacheTTL     time.Duration

	mu       sync.RWMutex
	cached   []*models.Stock
	cachedAt time.Time
}

// NewService creates the mapping service.
func NewService(
	lgr *applogger.Logger,
	metrics repository.Metrics,
	stocks repository.StockStore,
	news repository.NewsStore,
	links repository.LinkStore,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		logger:       lgr,
		metrics:      metrics,
		stocks:       stocks,
		news:         news,
		links:        links,
		scorer:       NewScorer(DefaultWeights()),
		minRelevance: 0.1,
		cacheTTL:     time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindMatches scores every known stock against the article and returns
// the positive matches sorted by descending relevance.
func (s *Service) FindMatches(ctx context.Context, article *models.NewsArticle) []Match {
	if article == nil {
		return nil
	}
	text := article.Title + "\n" + article.Body

	var matches []Match
	for _, stock := range s.stockList(ctx) {
		score, terms := s.scorer.Score(text, stock)
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{Stock: stock, Score: score, Terms: terms})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Stock.Ticker < matches[j].Stock.Ticker
	})
	return matches
}

// CreateLinks persists the article's matches at or above the minimum
// relevance. Existing links short-circuit unless forceRefresh, which
// deletes them first even when no match clears the threshold. Matches
// below the threshold are never written; a no-match outcome is not an
// error.
func (s *Service) CreateLinks(ctx context.Context, article *models.NewsArticle, forceRefresh bool) ([]*models.StockNewsLink, error) {
	if article == nil {
		return nil, nil
	}

	if !forceRefresh {
		exists, err := s.links.ExistsByArticle(ctx, article.ID)
		if err != nil {
			s.logger.Error("mapping: check existing links", applogger.String("article", article.ID), applogger.Error(err))
			s.metrics.RecordNewsLink(repository.OutcomeError)
			return nil, err
		}
		if exists {
			existing, err := s.links.ListByArticle(ctx, article.ID)
			if err != nil {
				s.logger.Error("mapping: load existing links", applogger.String("article", article.ID), applogger.Error(err))
				s.metrics.RecordNewsLink(repository.OutcomeError)
				return nil, err
			}
			s.metrics.RecordNewsLink(repository.LinkSkipped)
			return existing, nil
		}
	}

	matches := s.FindMatches(ctx, article)
	now := time.Now()
	links := make([]*models.StockNewsLink, 0, len(matches))
	for _, m := range matches {
		if m.Score < s.minRelevance {
			continue
		}
		s.metrics.RecordRelevance(m.Score)
		links = append(links, &models.StockNewsLink{
			ID:           uuid.NewString(),
			ArticleID:    article.ID,
			Ticker:       m.Stock.Ticker,
			Relevance:    m.Score,
			MatchedTerms: m.Terms,
			CreatedAt:    now,
		})
	}

	if forceRefresh {
		if err := s.links.DeleteByArticle(ctx, article.ID); err != nil {
			s.logger.Error("mapping: delete stale links", applogger.String("article", article.ID), applogger.Error(err))
			s.metrics.RecordNewsLink(repository.OutcomeError)
			return nil, err
		}
	}
	if len(links) == 0 {
		s.metrics.RecordNewsLink(repository.LinkUnlinked)
		return nil, nil
	}
	if err := s.links.InsertBatch(ctx, links); err != nil {
		s.logger.Error("mapping: insert links", applogger.String("article", article.ID), applogger.Error(err))
		s.metrics.RecordNewsLink(repository.OutcomeError)
		return nil, err
	}

	s.metrics.RecordNewsLink(repository.LinkCreated)
	s.logger.Debug("mapping: linked article",
		applogger.String("article", article.ID),
		applogger.Int("links", len(links)))
	return links, nil
}

// ProcessBatch maps a batch of articles and counts outcomes.
func (s *Service) ProcessBatch(ctx context.Context, articles []*models.NewsArticle) BatchResult {
	var res BatchResult
	for _, article := range articles {
		select {
		case <-ctx.Done():
			return res
		default:
		}
		res.Processed++
		links, err := s.CreateLinks(ctx, article, false)
		if err != nil {
			res.Errors++
			continue
		}
		if len(links) > 0 {
			res.Linked++
		}
	}
	return res
}

// NewsForStock returns recent articles linked to a ticker at or above
// minRelevance.
func (s *Service) NewsForStock(ctx context.Context, ticker string, minRelevance float64, limit int) []*models.NewsArticle {
	if minRelevance <= 0 {
		minRelevance = s.minRelevance
	}
	links, err := s.links.ListByTicker(ctx, ticker, minRelevance, limit)
	if err != nil {
		s.logger.Error("mapping: list links by ticker", applogger.String("ticker", ticker), applogger.Error(err))
		return nil
	}

	articles := make([]*models.NewsArticle, 0, len(links))
	for _, link := range links {
		article, err := s.news.GetByID(ctx, link.ArticleID)
		if err != nil {
			s.logger.Warn("mapping: load linked article", applogger.String("article", link.ArticleID), applogger.Error(err))
			continue
		}
		articles = append(articles, article)
	}
	return articles
}

// StocksInArticle returns the stocks linked to one article with scores.
func (s *Service) StocksInArticle(ctx context.Context, articleID string) []*models.StockNewsLink {
	links, err := s.links.ListByArticle(ctx, articleID)
	if err != nil {
		s.logger.Error("mapping: list links by article", applogger.String("article", articleID), applogger.Error(err))
		return nil
	}
	return links
}

// RecalculateScores re-runs scoring for an article, replacing its links.
func (s *Service) RecalculateScores(ctx context.Context, articleID string) []*models.StockNewsLink {
	article, err := s.news.GetByID(ctx, articleID)
	if err != nil {
		s.logger.Error("mapping: load article for recalc", applogger.String("article", articleID), applogger.Error(err))
		return nil
	}
	links, err := s.CreateLinks(ctx, article, true)
	if err != nil {
		return nil
	}
	return links
}

// Stats returns mapping statistics; failures degrade to zeroed stats.
func (s *Service) Stats(ctx context.Context, topN int) *models.MappingStats {
	if topN <= 0 {
		topN = 10
	}
	stats, err := s.links.Stats(ctx, topN)
	if err != nil {
		s.logger.Error("mapping: load stats", applogger.Error(err))
		return &models.MappingStats{}
	}
	return stats
}

// InvalidateStockCache drops the cached stock list so the next scoring
// pass reloads it.
func (s *Service) InvalidateStockCache() {
	s.mu.Lock()
	s.cachedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Service) stockList(ctx context.Context) []*models.Stock {
	s.mu.RLock()
	if time.Since(s.cachedAt) < s.cacheTTL {
		cached := s.cached
		s.mu.RUnlock()
		return cached
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.cachedAt) < s.cacheTTL {
		return s.cached
	}

	stocks, err := s.stocks.ListAll(ctx)
	if err != nil {
		s.logger.Error("mapping: refresh stock cache", applogger.Error(err))
		// Serve the stale list rather than nothing.
		return s.cached
	}
	s.cached = stocks
	s.cachedAt = time.Now()
	return s.cached
}
