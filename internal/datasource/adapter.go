package datasource

import (
	"context"
	"time"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
)

// Capability classifies what a data source provides.
type Capability string

const (
	CapabilityStockPrice    Capability = "stock_price"
	CapabilityFinancialData Capability = "financial_data"
	CapabilityNews          Capability = "news"
)

// RateLimitInfo exposes a source's request budget for observability.
type RateLimitInfo struct {
	PerMinute     int
	PerHour       int
	PerDay        int
	UsedMinute    int
	UsedHour      int
	UsedDay       int
	RetryAfterSec int
}

// CostInfo exposes a source's pricing model for observability.
type CostInfo struct {
	Plan           string
	CostPerRequest float64
	Currency       string
	MonthlyBudget  float64
}

// Adapter is a single external data source. Implementations normalize
// provider symbol formats and translate provider error shapes into the
// package error taxonomy. HealthCheck never returns an error value through
// a panic or raw provider error; failures map to unhealthy/degraded states.
type Adapter interface {
	Name() string
	Priority() int
	Capability() Capability
	Enabled() bool
	SetEnabled(enabled bool)

	HealthCheck(ctx context.Context) models.HealthCheck
	CurrentPrice(ctx context.Context, symbol string) (*models.Quote, error)
	HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval repository.Interval) ([]*models.PriceBar, error)
	SearchSymbols(ctx context.Context, query string) ([]*models.SymbolMatch, error)

	RateLimitInfo() RateLimitInfo
	CostInfo() CostInfo
}

// NewsFetcher is implemented by adapters with the news capability.
type NewsFetcher interface {
	Adapter
	FetchNews(ctx context.Context, limit int) ([]*models.NewsArticle, error)
}

// FilingsFetcher is implemented by adapters that serve financial filings.
type FilingsFetcher interface {
	Adapter
	SearchFilings(ctx context.Context, ticker string, from, to time.Time) ([]*Filing, error)
	DownloadFiling(ctx context.Context, docID string) ([]byte, error)
}

// Filing is a financial disclosure document reference.
type Filing struct {
	DocID       string
	Ticker      string
	CompanyName string
	DocType     string
	PeriodStart time.Time
	PeriodEnd   time.Time
	SubmittedAt time.Time
}
