package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	"Kessan/pkg/util"
)

const kabutanName = "kabutan"

// Kabutan scrapes market headline pages in the Kabutan layout. It is the
// fallback news source when the API-backed one is down or rate limited.
type Kabutan struct {
	baseAdapter
	client  *http.Client
	baseURL string
}

// KabutanOption configures Kabutan.
type KabutanOption func(*Kabutan)

// WithKabutanBaseURL overrides the page base URL (used in tests).
func WithKabutanBaseURL(u string) KabutanOption {
	return func(k *Kabutan) {
		k.baseURL = u
	}
}

// NewKabutan creates the scraping news adapter.
func NewKabutan(priority int, timeout time.Duration, perMinute int, opts ...KabutanOption) *Kabutan {
	k := &Kabutan{
		baseAdapter: newBaseAdapter(
			kabutanName,
			priority,
			CapabilityNews,
			newLimiter(kabutanName, perMinute, 0, 0, nil),
			CostInfo{Plan: "scrape", CostPerRequest: 0, Currency: "JPY"},
		),
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://kabutan.jp/news/marketnews/",
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kabutan) CurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, fmt.Errorf("%s: %w", kabutanName, ErrUnsupportedOperation)
}

func (k *Kabutan) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval repository.Interval) ([]*models.PriceBar, error) {
	return nil, fmt.Errorf("%s: %w", kabutanName, ErrUnsupportedOperation)
}

func (k *Kabutan) SearchSymbols(ctx context.Context, query string) ([]*models.SymbolMatch, error) {
	return nil, fmt.Errorf("%s: %w", kabutanName, ErrUnsupportedOperation)
}

// FetchNews scrapes the headline list page.
func (k *Kabutan) FetchNews(ctx context.Context, limit int) ([]*models.NewsArticle, error) {
	if err := k.limiter.allow(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	doc, err := k.fetchDocument(ctx, k.baseURL)
	if err != nil {
		return nil, err
	}
	return k.extractArticles(doc, limit), nil
}

func (k *Kabutan) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &UnavailableError{Source: kabutanName, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; kessan/1.0)")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Source: kabutanName, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{Source: kabutanName, RetryAfter: time.Minute}
	case resp.StatusCode >= 500:
		return nil, &UnavailableError{Source: kabutanName, Err: fmt.Errorf("status %s", resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return nil, &InvalidDataError{Source: kabutanName, Reason: fmt.Sprintf("status %s", resp.Status)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &InvalidDataError{Source: kabutanName, Reason: fmt.Sprintf("parse page: %v", err)}
	}
	return doc, nil
}

func (k *Kabutan) extractArticles(doc *goquery.Document, limit int) []*models.NewsArticle {
	base, _ := url.Parse(k.baseURL)

	var articles []*models.NewsArticle
	doc.Find("table.s_news_list tr, ul.news_list li").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link := row.Find("a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return true
		}

		href, _ := link.Attr("href")
		articleURL := href
		if base != nil && href != "" {
			if u, err := url.Parse(href); err == nil {
				articleURL = base.ResolveReference(u).String()
			}
		}

		publishedAt := time.Now()
		if dt, ok := row.Find("time").First().Attr("datetime"); ok {
			publishedAt = util.ParseTimeDefault(dt, publishedAt)
		}

		articles = append(articles, &models.NewsArticle{
			ID:          uuid.NewString(),
			Source:      kabutanName,
			Title:       title,
			URL:         articleURL,
			ContentHash: util.ContentHash(kabutanName, title, articleURL),
			PublishedAt: publishedAt,
			CreatedAt:   time.Now(),
		})
		return len(articles) < limit
	})
	return articles
}

// HealthCheck loads the headline page and verifies it parses.
func (k *Kabutan) HealthCheck(ctx context.Context) models.HealthCheck {
	start := time.Now()
	check := models.HealthCheck{Source: kabutanName, CheckedAt: start}

	doc, err := k.fetchDocument(ctx, k.baseURL)
	check.Latency = time.Since(start)

	switch {
	case err == nil && doc.Find("a").Length() > 0:
		check.State = models.HealthHealthy
	case err != nil && IsRateLimit(err):
		check.State = models.HealthDegraded
		check.Error = err.Error()
	case err != nil:
		check.State = models.HealthUnhealthy
		check.Error = err.Error()
	default:
		check.State = models.HealthDegraded
		check.Error = "page parsed but no links found"
	}
	return check
}
