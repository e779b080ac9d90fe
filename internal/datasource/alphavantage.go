package datasource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	apphttp "Kessan/pkg/http"
	"Kessan/pkg/util"
)

const alphaVantageName = "alpha_vantage"

// AlphaVantage is a stock price adapter over the Alpha Vantage query API.
type AlphaVantage struct {
	baseAdapter
	client  *apphttp.Client
	baseURL string
	apiKey  string
}

// AlphaVantageOption configures AlphaVantage.
type AlphaVantageOption func(*AlphaVantage)

// WithAlphaVantageBaseURL overrides the API base URL (used in tests).
func WithAlphaVantageBaseURL(u string) AlphaVantageOption {
	return func(a *AlphaVantage) {
		a.baseURL = u
	}
}

// WithAlphaVantageClock injects the rate limiter clock (used in tests).
func WithAlphaVantageClock(now func() time.Time) AlphaVantageOption {
	return func(a *AlphaVantage) {
		a.limiter.now = now
	}
}

// NewAlphaVantage creates the Alpha Vantage adapter. The free tier allows
// 5 requests per minute and 500 per day.
func NewAlphaVantage(apiKey string, priority int, timeout time.Duration, perMinute, perDay int, opts ...AlphaVantageOption) *AlphaVantage {
	a := &AlphaVantage{
		baseAdapter: newBaseAdapter(
			alphaVantageName,
			priority,
			CapabilityStockPrice,
			newLimiter(alphaVantageName, perMinute, 0, perDay, nil),
			CostInfo{Plan: "free", CostPerRequest: 0, Currency: "USD"},
		),
		client:  apphttp.NewClient(apphttp.WithTimeout(timeout)),
		baseURL: "https://www.alphavantage.co/query",
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NormalizeSymbol appends the Tokyo exchange suffix Alpha Vantage expects.
// Normalizing an already-normalized symbol is a no-op.
func (a *AlphaVantage) NormalizeSymbol(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".TYO"
}

type avQuoteResponse struct {
	GlobalQuote struct {
		Symbol    string `json:"01. symbol"`
		Price     string `json:"05. price"`
		Volume    string `json:"06. volume"`
		PrevClose string `json:"08. previous close"`
	} `json:"Global Quote"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

// CurrentPrice fetches a GLOBAL_QUOTE snapshot.
func (a *AlphaVantage) CurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := a.limiter.allow(); err != nil {
		return nil, err
	}

	var resp avQuoteResponse
	err := a.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    a.baseURL,
		QueryParams: map[string][]string{
			"function": {"GLOBAL_QUOTE"},
			"symbol":   {a.NormalizeSymbol(symbol)},
			"apikey":   {a.apiKey},
		},
	}, &resp)
	if err != nil {
		return nil, translateError(alphaVantageName, err)
	}
	if err := avEmbeddedLimit(resp.Note, resp.Information); err != nil {
		return nil, err
	}
	if resp.GlobalQuote.Price == "" {
		return nil, &InvalidDataError{Source: alphaVantageName, Reason: fmt.Sprintf("empty quote for %s", symbol)}
	}

	price := util.ParseFloatDefault(resp.GlobalQuote.Price, 0)
	prevClose := util.ParseFloatDefault(resp.GlobalQuote.PrevClose, 0)
	if price <= 0 {
		return nil, &InvalidDataError{Source: alphaVantageName, Reason: fmt.Sprintf("non-positive price %q", resp.GlobalQuote.Price)}
	}

	q := &models.Quote{
		Ticker:    symbol,
		Price:     price,
		PrevClose: prevClose,
		Volume:    int64(util.ParseIntDefault(resp.GlobalQuote.Volume, 0)),
		Currency:  "JPY",
		Source:    alphaVantageName,
		Timestamp: time.Now(),
	}
	q.Change, q.ChangePct = priceChange(price, prevClose)
	return q, nil
}

type avDailyResponse struct {
	Series      map[string]map[string]string `json:"Time Series (Daily)"`
	Note        string                       `json:"Note"`
	Information string                       `json:"Information"`
}

// HistoricalPrices fetches TIME_SERIES_DAILY bars inside [from, to].
// Alpha Vantage only serves daily granularity for Tokyo listings; other
// intervals are collapsed to 1d.
func (a *AlphaVantage) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, _ repository.Interval) ([]*models.PriceBar, error) {
	if err := a.limiter.allow(); err != nil {
		return nil, err
	}

	var resp avDailyResponse
	err := a.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    a.baseURL,
		QueryParams: map[string][]string{
			"function":   {"TIME_SERIES_DAILY"},
			"symbol":     {a.NormalizeSymbol(symbol)},
			"outputsize": {"full"},
			"apikey":     {a.apiKey},
		},
	}, &resp)
	if err != nil {
		return nil, translateError(alphaVantageName, err)
	}
	if err := avEmbeddedLimit(resp.Note, resp.Information); err != nil {
		return nil, err
	}
	if len(resp.Series) == 0 {
		return nil, &InvalidDataError{Source: alphaVantageName, Reason: fmt.Sprintf("no daily series for %s", symbol)}
	}

	bars := make([]*models.PriceBar, 0, len(resp.Series))
	for day, fields := range resp.Series {
		bucket, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		if bucket.Before(from) || bucket.After(to) {
			continue
		}
		bars = append(bars, &models.PriceBar{
			Ticker:   symbol,
			Bucket:   bucket,
			Open:     util.ParseFloatDefault(fields["1. open"], 0),
			High:     util.ParseFloatDefault(fields["2. high"], 0),
			Low:      util.ParseFloatDefault(fields["3. low"], 0),
			Close:    util.ParseFloatDefault(fields["4. close"], 0),
			Volume:   util.ParseFloatDefault(fields["5. volume"], 0),
			Interval: string(repository.Interval1d),
			Source:   alphaVantageName,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Bucket.Before(bars[j].Bucket) })
	return bars, nil
}

type avSearchResponse struct {
	BestMatches []struct {
		Symbol   string `json:"1. symbol"`
		Name     string `json:"2. name"`
		Region   string `json:"4. region"`
		Currency string `json:"8. currency"`
		Score    string `json:"9. matchScore"`
	} `json:"bestMatches"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

// SearchSymbols runs SYMBOL_SEARCH.
func (a *AlphaVantage) SearchSymbols(ctx context.Context, query string) ([]*models.SymbolMatch, error) {
	if err := a.limiter.allow(); err != nil {
		return nil, err
	}

	var resp avSearchResponse
	err := a.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    a.baseURL,
		QueryParams: map[string][]string{
			"function": {"SYMBOL_SEARCH"},
			"keywords": {query},
			"apikey":   {a.apiKey},
		},
	}, &resp)
	if err != nil {
		return nil, translateError(alphaVantageName, err)
	}
	if err := avEmbeddedLimit(resp.Note, resp.Information); err != nil {
		return nil, err
	}

	matches := make([]*models.SymbolMatch, 0, len(resp.BestMatches))
	for _, m := range resp.BestMatches {
		matches = append(matches, &models.SymbolMatch{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Region:   m.Region,
			Currency: m.Currency,
			Score:    util.ParseFloatDefault(m.Score, 0),
		})
	}
	return matches, nil
}

// HealthCheck probes the API with a lightweight quote request.
func (a *AlphaVantage) HealthCheck(ctx context.Context) models.HealthCheck {
	start := time.Now()
	check := models.HealthCheck{Source: alphaVantageName, CheckedAt: start}

	_, err := a.CurrentPrice(ctx, "7203")
	check.Latency = time.Since(start)

	switch {
	case err == nil:
		check.State = models.HealthHealthy
	case IsRateLimit(err):
		// The API is up, we just exhausted the budget.
		check.State = models.HealthDegraded
		check.Error = err.Error()
	default:
		check.State = models.HealthUnhealthy
		check.Error = err.Error()
	}
	if check.State == models.HealthHealthy && check.Latency > 5*time.Second {
		check.State = models.HealthDegraded
	}
	return check
}

// avEmbeddedLimit detects the rate limit notices Alpha Vantage embeds in
// HTTP 200 responses.
func avEmbeddedLimit(note, information string) error {
	for _, msg := range []string{note, information} {
		if msg == "" {
			continue
		}
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "call frequency") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "premium") {
			return &RateLimitError{Source: alphaVantageName, RetryAfter: time.Minute}
		}
	}
	return nil
}

// priceChange computes absolute and percent change against previous close.
func priceChange(price, prevClose float64) (change, pct float64) {
	if prevClose <= 0 {
		return 0, 0
	}
	change = price - prevClose
	pct = change / prevClose * 100
	return change, pct
}
