package datasource

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func TestYahooNormalizeSymbolIdempotent(t *testing.T) {
	y := NewYahooFinance(10, time.Second, 0, 0)
	tests := []struct {
		in   string
		want string
	}{
		{"7203", "7203.T"},
		{"7203.T", "7203.T"},
		{"^N225", "^N225"},
		{"6758", "6758.T"},
	}
	for _, tt := range tests {
		got := y.NormalizeSymbol(tt.in)
		if got != tt.want {
			t.Fatalf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := y.NormalizeSymbol(got); again != got {
			t.Fatalf("normalization not idempotent: %q -> %q", got, again)
		}
	}
}

func TestAlphaVantageNormalizeSymbolIdempotent(t *testing.T) {
	a := NewAlphaVantage("key", 20, time.Second, 0, 0)
	tests := []struct {
		in   string
		want string
	}{
		{"7203", "7203.TYO"},
		{"7203.TYO", "7203.TYO"},
	}
	for _, tt := range tests {
		got := a.NormalizeSymbol(tt.in)
		if got != tt.want {
			t.Fatalf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := a.NormalizeSymbol(got); again != got {
			t.Fatalf("normalization not idempotent: %q -> %q", got, again)
		}
	}
}

func TestPriceChange(t *testing.T) {
	change, pct := priceChange(152.50, 151.00)
	if math.Abs(change-1.50) > 1e-9 {
		t.Fatalf("change = %f, want 1.50", change)
	}
	if math.Abs(pct-0.9934) > 0.001 {
		t.Fatalf("pct = %f, want ~0.99", pct)
	}

	change, pct = priceChange(100, 0)
	if change != 0 || pct != 0 {
		t.Fatalf("missing previous close must yield zero change, got %f/%f", change, pct)
	}
}

func TestYahooCurrentPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/v8/finance/chart/7203.T") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"chart": {
				"result": [{
					"meta": {
						"currency": "JPY",
						"regularMarketPrice": 152.50,
						"chartPreviousClose": 151.00,
						"regularMarketVolume": 1200000,
						"regularMarketTime": 1743500000
					}
				}],
				"error": null
			}
		}`))
	}))
	defer srv.Close()

	y := NewYahooFinance(10, time.Second, 0, 0, WithYahooBaseURL(srv.URL))
	q, err := y.CurrentPrice(context.Background(), "7203")
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if q.Price != 152.50 {
		t.Fatalf("price = %f, want 152.50", q.Price)
	}
	if math.Abs(q.Change-1.50) > 1e-9 {
		t.Fatalf("change = %f, want 1.50", q.Change)
	}
	if math.Abs(q.ChangePct-0.9934) > 0.001 {
		t.Fatalf("change pct = %f, want ~0.99", q.ChangePct)
	}
	if q.Currency != "JPY" || q.Source != yahooName {
		t.Fatalf("unexpected quote metadata: %+v", q)
	}
}

func TestYahooServerErrorTranslated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	y := NewYahooFinance(10, time.Second, 0, 0, WithYahooBaseURL(srv.URL))
	_, err := y.CurrentPrice(context.Background(), "7203")
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}

func TestYahooTooManyRequestsTranslated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	y := NewYahooFinance(10, time.Second, 0, 0, WithYahooBaseURL(srv.URL))
	_, err := y.CurrentPrice(context.Background(), "7203")
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestAlphaVantageEmbeddedRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`))
	}))
	defer srv.Close()

	a := NewAlphaVantage("key", 20, time.Second, 0, 0, WithAlphaVantageBaseURL(srv.URL))
	_, err := a.CurrentPrice(context.Background(), "7203")
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit from embedded note, got %v", err)
	}
}

func TestAlphaVantageQuoteParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"Global Quote": {
				"01. symbol": "7203.TYO",
				"05. price": "3010.0000",
				"06. volume": "4521000",
				"08. previous close": "2985.0000"
			}
		}`))
	}))
	defer srv.Close()

	a := NewAlphaVantage("key", 20, time.Second, 0, 0, WithAlphaVantageBaseURL(srv.URL))
	q, err := a.CurrentPrice(context.Background(), "7203")
	if err != nil {
		t.Fatalf("current price: %v", err)
	}
	if q.Price != 3010 || q.PrevClose != 2985 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if q.Volume != 4521000 {
		t.Fatalf("volume = %d, want 4521000", q.Volume)
	}
	if math.Abs(q.Change-25.0) > 1e-9 {
		t.Fatalf("change = %f, want 25.0", q.Change)
	}
}

func TestAdapterPreflightRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":100,"chartPreviousClose":99}}],"error":null}}`))
	}))
	defer srv.Close()

	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	y := NewYahooFinance(10, time.Second, 1, 0,
		WithYahooBaseURL(srv.URL),
		WithYahooClock(func() time.Time { return now }))

	if _, err := y.CurrentPrice(context.Background(), "7203"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := y.CurrentPrice(context.Background(), "7203"); !IsRateLimit(err) {
		t.Fatalf("expected pre-flight rate limit, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("limited call must not reach the server, got %d requests", calls)
	}
}

func TestKabutanExtractArticles(t *testing.T) {
	html := `<html><body><table class="s_news_list">
		<tr><td><time datetime="2025-04-01T09:30:00+09:00">09:30</time></td>
			<td><a href="/news/marketnews/?b=n202504010001">トヨタ自動車、決算発表で上方修正</a></td></tr>
		<tr><td><time datetime="2025-04-01T09:45:00+09:00">09:45</time></td>
			<td><a href="/news/marketnews/?b=n202504010002">ソニーG、新型センサー量産へ</a></td></tr>
		<tr><td></td><td></td></tr>
	</table></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	k := NewKabutan(30, time.Second, 0)
	articles := k.extractArticles(doc, 10)
	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(articles))
	}
	if !strings.Contains(articles[0].Title, "トヨタ自動車") {
		t.Fatalf("unexpected title %q", articles[0].Title)
	}
	if !strings.HasPrefix(articles[0].URL, "https://kabutan.jp/") {
		t.Fatalf("relative url not resolved: %q", articles[0].URL)
	}
	if articles[0].ContentHash == articles[1].ContentHash {
		t.Fatal("distinct articles must hash differently")
	}
	if articles[0].PublishedAt.UTC().Hour() != 0 {
		t.Fatalf("expected 09:30 JST to be 00:30 UTC, got %s", articles[0].PublishedAt.UTC())
	}
}

func TestKabutanExtractRespectsLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="news_list">`)
	for i := 0; i < 10; i++ {
		b.WriteString(`<li><a href="/news/1">headline</a></li>`)
	}
	b.WriteString(`</ul></body></html>`)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	k := NewKabutan(30, time.Second, 0)
	if got := k.extractArticles(doc, 3); len(got) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(got))
	}
}
