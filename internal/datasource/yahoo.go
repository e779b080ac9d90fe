package datasource

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	apphttp "Kessan/pkg/http"
)

const yahooName = "yahoo_finance"

// YahooFinance is a stock price adapter over the Yahoo Finance chart and
// search endpoints. It is the preferred free source for Tokyo listings.
type YahooFinance struct {
	baseAdapter
	client  *apphttp.Client
	baseURL string
}

// YahooOption configures YahooFinance.
type YahooOption func(*YahooFinance)

// WithYahooBaseURL overrides the API base URL (used in tests).
func WithYahooBaseURL(u string) YahooOption {
	return func(y *YahooFinance) {
		y.baseURL = u
	}
}

// WithYahooClock injects the rate limiter clock (used in tests).
func WithYahooClock(now func() time.Time) YahooOption {
	return func(y *YahooFinance) {
		y.limiter.now = now
	}
}

// NewYahooFinance creates the Yahoo Finance adapter.
func NewYahooFinance(priority int, timeout time.Duration, perMinute, perHour int, opts ...YahooOption) *YahooFinance {
	y := &YahooFinance{
		baseAdapter: newBaseAdapter(
			yahooName,
			priority,
			CapabilityStockPrice,
			newLimiter(yahooName, perMinute, perHour, 0, nil),
			CostInfo{Plan: "free", CostPerRequest: 0, Currency: "USD"},
		),
		client:  apphttp.NewClient(apphttp.WithTimeout(timeout)),
		baseURL: "https://query1.finance.yahoo.com",
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// NormalizeSymbol appends the Tokyo exchange suffix Yahoo expects.
// Index symbols such as ^N225 and already-suffixed symbols pass through
// unchanged, so normalizing twice is a no-op.
func (y *YahooFinance) NormalizeSymbol(symbol string) string {
	if strings.HasPrefix(symbol, "^") || strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".T"
}

// CurrentPrice reads the chart meta block for the latest snapshot.
func (y *YahooFinance) CurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	body, err := y.chart(ctx, symbol, "1d", "1d")
	if err != nil {
		return nil, err
	}

	meta := gjson.GetBytes(body, "chart.result.0.meta")
	if !meta.Exists() {
		return nil, &InvalidDataError{Source: yahooName, Reason: fmt.Sprintf("missing chart meta for %s", symbol)}
	}

	price := meta.Get("regularMarketPrice").Float()
	if price <= 0 {
		return nil, &InvalidDataError{Source: yahooName, Reason: fmt.Sprintf("non-positive price for %s", symbol)}
	}
	prevClose := meta.Get("chartPreviousClose").Float()
	if prevClose <= 0 {
		prevClose = meta.Get("previousClose").Float()
	}

	q := &models.Quote{
		Ticker:    symbol,
		Price:     price,
		PrevClose: prevClose,
		Volume:    meta.Get("regularMarketVolume").Int(),
		Currency:  strings.ToUpper(meta.Get("currency").String()),
		Source:    yahooName,
		Timestamp: time.Unix(meta.Get("regularMarketTime").Int(), 0),
	}
	if q.Currency == "" {
		q.Currency = "JPY"
	}
	if q.Timestamp.Unix() <= 0 {
		q.Timestamp = time.Now()
	}
	q.Change, q.ChangePct = priceChange(price, prevClose)
	return q, nil
}

// HistoricalPrices reads chart timestamps and OHLCV arrays.
func (y *YahooFinance) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval repository.Interval) ([]*models.PriceBar, error) {
	if err := y.limiter.allow(); err != nil {
		return nil, err
	}

	var body []byte
	err := y.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    fmt.Sprintf("%s/v8/finance/chart/%s", y.baseURL, y.NormalizeSymbol(symbol)),
		QueryParams: map[string][]string{
			"period1":  {strconv.FormatInt(from.Unix(), 10)},
			"period2":  {strconv.FormatInt(to.Unix(), 10)},
			"interval": {yahooInterval(interval)},
		},
	}, &body)
	if err != nil {
		return nil, translateError(yahooName, err)
	}
	if err := yahooChartError(body); err != nil {
		return nil, err
	}

	result := gjson.GetBytes(body, "chart.result.0")
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	if len(timestamps) == 0 || !quote.Exists() {
		return nil, &InvalidDataError{Source: yahooName, Reason: fmt.Sprintf("empty chart for %s", symbol)}
	}

	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	bars := make([]*models.PriceBar, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(closes) || closes[i].Type == gjson.Null {
			continue
		}
		bar := &models.PriceBar{
			Ticker:   symbol,
			Bucket:   time.Unix(ts.Int(), 0).UTC(),
			Close:    closes[i].Float(),
			Interval: string(interval),
			Source:   yahooName,
		}
		if i < len(opens) {
			bar.Open = opens[i].Float()
		}
		if i < len(highs) {
			bar.High = highs[i].Float()
		}
		if i < len(lows) {
			bar.Low = lows[i].Float()
		}
		if i < len(volumes) {
			bar.Volume = volumes[i].Float()
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// SearchSymbols runs the finance search endpoint.
func (y *YahooFinance) SearchSymbols(ctx context.Context, query string) ([]*models.SymbolMatch, error) {
	if err := y.limiter.allow(); err != nil {
		return nil, err
	}

	var body []byte
	err := y.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    fmt.Sprintf("%s/v1/finance/search", y.baseURL),
		QueryParams: map[string][]string{
			"q":           {query},
			"quotesCount": {"10"},
			"newsCount":   {"0"},
		},
	}, &body)
	if err != nil {
		return nil, translateError(yahooName, err)
	}

	quotes := gjson.GetBytes(body, "quotes").Array()
	matches := make([]*models.SymbolMatch, 0, len(quotes))
	for _, q := range quotes {
		symbol := q.Get("symbol").String()
		if symbol == "" {
			continue
		}
		name := q.Get("shortname").String()
		if name == "" {
			name = q.Get("longname").String()
		}
		matches = append(matches, &models.SymbolMatch{
			Symbol:   symbol,
			Name:     name,
			Region:   q.Get("exchange").String(),
			Currency: "JPY",
			Score:    q.Get("score").Float(),
		})
	}
	return matches, nil
}

// HealthCheck probes the chart endpoint for the Nikkei benchmark.
func (y *YahooFinance) HealthCheck(ctx context.Context) models.HealthCheck {
	start := time.Now()
	check := models.HealthCheck{Source: yahooName, CheckedAt: start}

	_, err := y.chart(ctx, "^N225", "1d", "1d")
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
	if check.State == models.HealthHealthy && check.Latency > 5*time.Second {
		check.State = models.HealthDegraded
	}
	return check
}

func (y *YahooFinance) chart(ctx context.Context, symbol, rng, interval string) ([]byte, error) {
	if err := y.limiter.allow(); err != nil {
		return nil, err
	}

	var body []byte
	err := y.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: "GET",
		URL:    fmt.Sprintf("%s/v8/finance/chart/%s", y.baseURL, y.NormalizeSymbol(symbol)),
		QueryParams: map[string][]string{
			"range":    {rng},
			"interval": {interval},
		},
	}, &body)
	if err != nil {
		return nil, translateError(yahooName, err)
	}
	if err := yahooChartError(body); err != nil {
		return nil, err
	}
	return body, nil
}

func yahooChartError(body []byte) error {
	errNode := gjson.GetBytes(body, "chart.error")
	if !errNode.Exists() || errNode.Type == gjson.Null {
		return nil
	}
	desc := errNode.Get("description").String()
	if strings.Contains(strings.ToLower(desc), "rate") {
		return &RateLimitError{Source: yahooName, RetryAfter: time.Minute}
	}
	return &InvalidDataError{Source: yahooName, Reason: desc}
}

func yahooInterval(iv repository.Interval) string {
	switch iv {
	case repository.Interval5m:
		return "5m"
	case repository.Interval1h:
		return "60m"
	default:
		return "1d"
	}
}
