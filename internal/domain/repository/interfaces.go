package repository

import (
	"context"
	"time"

	"Kessan/internal/domain/models"
)

// StockStore persists the stock master list.
type StockStore interface {
	Upsert(ctx context.Context, stock *models.Stock) error
	GetByTicker(ctx context.Context, ticker string) (*models.Stock, error)
	ListAll(ctx context.Context) ([]*models.Stock, error)
	Health(ctx context.Context) error
}

// NewsStore persists ingested articles.
type NewsStore interface {
	Insert(ctx context.Context, article *models.NewsArticle) error
	GetByID(ctx context.Context, id string) (*models.NewsArticle, error)
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]*models.NewsArticle, error)
	CountAll(ctx context.Context) (int64, error)
}

// LinkStore persists stock-news relevance links.
type LinkStore interface {
	InsertBatch(ctx context.Context, links []*models.StockNewsLink) error
	DeleteByArticle(ctx context.Context, articleID string) error
	ExistsByArticle(ctx context.Context, articleID string) (bool, error)
	ListByArticle(ctx context.Context, articleID string) ([]*models.StockNewsLink, error)
	ListByTicker(ctx context.Context, ticker string, minRelevance float64, limit int) ([]*models.StockNewsLink, error)
	Stats(ctx context.Context, topN int) (*models.MappingStats, error)
}

// PriceStore persists OHLCV bars in the time series database.
type PriceStore interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, bars []*models.PriceBar) error
	Query(ctx context.Context, ticker string, from, to time.Time, interval Interval, limit int) ([]*models.PriceBar, error)
	Health(ctx context.Context) error
	Close() error
}

// AnalysisStore caches generated analyses.
type AnalysisStore interface {
	Insert(ctx context.Context, a *models.Analysis) error
	GetLatest(ctx context.Context, ticker string, notBefore time.Time) (*models.Analysis, error)
}

// AlertStore persists alert state transitions.
type AlertStore interface {
	Insert(ctx context.Context, e *models.AlertEvent) error
	ListRecent(ctx context.Context, limit int) ([]*models.AlertEvent, error)
}

// Publisher sends ingested articles downstream.
type Publisher interface {
	PublishArticle(ctx context.Context, article *models.NewsArticle) error
	Close() error
}

// Outcome labels shared by every metric that carries an outcome.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"

	// News link outcomes beyond the shared set.
	LinkCreated  = "created"
	LinkSkipped  = "skipped"
	LinkUnlinked = "unlinked"
)

// Metrics records operational measurements. Implemented by pkg/metrics.
type Metrics interface {
	RecordProviderRequest(source, operation, outcome string)
	RecordFailover(capability, from string)
	RecordBreakerState(source string, open bool)
	RecordAdapterHealth(source string, healthy bool)
	RecordError(kind string)
	RecordLastPrice(ticker string, price float64)
	RecordLatency(op string, seconds float64)
	RecordNewsLink(outcome string)
	RecordRelevance(score float64)
	RecordAnalysisTokens(kind string, n int64)
	RecordAlert(alert, transition string)
}
