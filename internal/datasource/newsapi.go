package datasource

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	apphttp "Kessan/pkg/http"
	"Kessan/pkg/util"
)

const newsAPIName = "newsapi"

// NewsAPI is a news adapter over a NewsAPI-style REST endpoint.
type NewsAPI struct {
	baseAdapter
	client  *apphttp.Client
	baseURL string
	apiKey  string
	query   string
}

// NewsAPIOption configures NewsAPI.
type NewsAPIOption func(*NewsAPI)

// WithNewsAPIBaseURL overrides the API base URL (used in tests).
func WithNewsAPIBaseURL(u string) NewsAPIOption {
	return func(n *NewsAPI) {
		n.baseURL = u
	}
}

// WithNewsAPIQuery overrides the default search query.
func WithNewsAPIQuery(q string) NewsAPIOption {
	return func(n *NewsAPI) {
		n.query = q
	}
}

// NewNewsAPI creates the NewsAPI adapter.
func NewNewsAPI(apiKey string, priority int, timeout time.Duration, perHour, perDay int, opts ...NewsAPIOption) *NewsAPI {
	n := &NewsAPI{
		baseAdapter: newBaseAdapter(
			newsAPIName,
			priority,
			CapabilityNews,
			newLimiter(newsAPIName, 0, perHour, perDay, nil),
			CostInfo{Plan: "developer", CostPerRequest: 0, Currency: "USD"},
		),
		client:  apphttp.NewClient(apphttp.WithTimeout(timeout)),
		baseURL: "https://newsapi.org/v2",
		apiKey:  apiKey,
		query:   "株式 OR 決算 OR 東証",
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *NewsAPI) CurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, fmt.Errorf("%s: %w", newsAPIName, ErrUnsupportedOperation)
}

func (n *NewsAPI) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval repository.Interval) ([]*models.PriceBar, error) {
	return nil, fmt.Errorf("%s: %w", newsAPIName, ErrUnsupportedOperation)
}

func (n *NewsAPI) SearchSymbols(ctx context.Context, query string) ([]*models.SymbolMatch, error) {
	return nil, fmt.Errorf("%s: %w", newsAPIName, ErrUnsupportedOperation)
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// FetchNews pulls the latest Japanese market articles.
func (n *NewsAPI) FetchNews(ctx context.Context, limit int) ([]*models.NewsArticle, error) {
	if err := n.limiter.allow(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var resp newsAPIResponse
	err := n.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    fmt.Sprintf("%s/everything", n.baseURL),
		QueryParams: map[string][]string{
			"q":        {n.query},
			"language": {"jp"},
			"sortBy":   {"publishedAt"},
			"pageSize": {strconv.Itoa(limit)},
			"apiKey":   {n.apiKey},
		},
	}, &resp)
	if err != nil {
		return nil, translateError(newsAPIName, err)
	}
	if resp.Status != "ok" {
		if resp.Code == "rateLimited" {
			return nil, &RateLimitError{Source: newsAPIName, RetryAfter: time.Hour}
		}
		return nil, &InvalidDataError{Source: newsAPIName, Reason: resp.Message}
	}

	articles := make([]*models.NewsArticle, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.Title == "" {
			continue
		}
		body := a.Content
		if body == "" {
			body = a.Description
		}
		articles = append(articles, &models.NewsArticle{
			ID:          uuid.NewString(),
			Source:      newsAPIName,
			Title:       a.Title,
			Body:        body,
			URL:         a.URL,
			ContentHash: util.ContentHash(newsAPIName, a.Title, a.URL),
			PublishedAt: util.ParseTimeDefault(a.PublishedAt, time.Now()),
			CreatedAt:   time.Now(),
		})
	}
	return articles, nil
}

// HealthCheck probes the endpoint with a minimal query.
func (n *NewsAPI) HealthCheck(ctx context.Context) models.HealthCheck {
	start := time.Now()
	check := models.HealthCheck{Source: newsAPIName, CheckedAt: start}

	_, err := n.FetchNews(ctx, 1)
	check.Latency = time.Since(start)

	switch {
	case err == nil:
		check.State = models.HealthHealthy
	case IsRateLimit(err):
		check.State = models.HealthDegraded
		check.Error = err.Error()
	default:
		check.State = models.HealthUnhealthy
		check.Error = err.Error()
	}
	return check
}
