package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"Kessan/internal/datasource"
	"Kessan/internal/domain/models"
	domrepo "Kessan/internal/domain/repository"
	applogger "Kessan/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordProviderRequest(string, string, string) {}
func (nopMetrics) RecordFailover(string, string)                {}
func (nopMetrics) RecordBreakerState(string, bool)              {}
func (nopMetrics) RecordAdapterHealth(string, bool)             {}
func (nopMetrics) RecordError(string)                           {}
func (nopMetrics) RecordLastPrice(string, float64)              {}
func (nopMetrics) RecordLatency(string, float64)                {}
func (nopMetrics) RecordNewsLink(string)                        {}
func (nopMetrics) RecordRelevance(float64)                      {}
func (nopMetrics) RecordAnalysisTokens(string, int64)           {}
func (nopMetrics) RecordAlert(string, string)                   {}

type stubAdapter struct {
	name    string
	enabled bool
}

func (a *stubAdapter) Name() string                            { return a.name }
func (a *stubAdapter) Priority() int                           { return 10 }
func (a *stubAdapter) Capability() datasource.Capability       { return datasource.CapabilityStockPrice }
func (a *stubAdapter) Enabled() bool                           { return a.enabled }
func (a *stubAdapter) SetEnabled(v bool)                       { a.enabled = v }
func (a *stubAdapter) RateLimitInfo() datasource.RateLimitInfo { return datasource.RateLimitInfo{} }
func (a *stubAdapter) CostInfo() datasource.CostInfo           { return datasource.CostInfo{} }

func (a *stubAdapter) HealthCheck(context.Context) models.HealthCheck {
	return models.HealthCheck{Source: a.name, State: models.HealthHealthy, CheckedAt: time.Now()}
}

func (a *stubAdapter) CurrentPrice(context.Context, string) (*models.Quote, error) {
	return &models.Quote{Price: 1}, nil
}

func (a *stubAdapter) HistoricalPrices(context.Context, string, time.Time, time.Time, domrepo.Interval) ([]*models.PriceBar, error) {
	return nil, nil
}

func (a *stubAdapter) SearchSymbols(context.Context, string) ([]*models.SymbolMatch, error) {
	return nil, nil
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	lgr, err := applogger.New(&applogger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lgr
}

func TestDatasourcesListAndToggle(t *testing.T) {
	reg := datasource.NewRegistry(testLogger(t), nopMetrics{})
	adapter := &stubAdapter{name: "yahoo_finance", enabled: true}
	if err := reg.Register(adapter); err != nil {
		t.Fatalf("register: %v", err)
	}

	e := echo.New()
	NewDatasourcesHandler(testLogger(t), reg).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/datasources", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "yahoo_finance") {
		t.Fatalf("list missing adapter: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/datasources/yahoo_finance/disable", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d", rec.Code)
	}
	if adapter.Enabled() {
		t.Fatal("adapter still enabled after disable")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/datasources/nope/enable", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown adapter status = %d, want 404", rec.Code)
	}
}

func TestDatasourcesResetBreaker(t *testing.T) {
	reg := datasource.NewRegistry(testLogger(t), nopMetrics{})
	if err := reg.Register(&stubAdapter{name: "alpha_vantage", enabled: true}); err != nil {
		t.Fatalf("register: %v", err)
	}

	e := echo.New()
	NewDatasourcesHandler(testLogger(t), reg).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/datasources/alpha_vantage/reset-breaker", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/datasources/nope/reset-breaker", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown reset status = %d, want 404", rec.Code)
	}
}

func TestHealthLiveAlwaysOK(t *testing.T) {
	e := echo.New()
	e.GET("/health/live", liveOnlyHealthHandler(t).Live)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("live status = %d", rec.Code)
	}
}

// liveOnlyHealthHandler builds a HealthHandler with only the pieces
// the liveness probe touches.
func liveOnlyHealthHandler(t *testing.T) *HealthHandler {
	t.Helper()
	reg := datasource.NewRegistry(testLogger(t), nopMetrics{})
	return NewHealthHandler(testLogger(t), nil, nil, reg, nil, nil)
}

func TestQuotesHubBroadcast(t *testing.T) {
	hub := NewQuotesHub(testLogger(t))

	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quotes"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastQuote(&models.Quote{
		Ticker: "7203", Price: 3010, Change: 10, ChangePct: 0.33,
		Source: "yahoo_finance", Timestamp: time.Now(),
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame quoteFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Ticker != "7203" || frame.Type != "quote" {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestQuotesHubSubscriptionFilter(t *testing.T) {
	hub := NewQuotesHub(testLogger(t))

	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quotes"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.WriteJSON(subscribeRequest{Action: "subscribe", Tickers: []string{"6758"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// give the read loop a moment to apply the filter
	time.Sleep(50 * time.Millisecond)

	hub.BroadcastQuote(&models.Quote{Ticker: "7203", Price: 1, Timestamp: time.Now()})
	hub.BroadcastQuote(&models.Quote{Ticker: "6758", Price: 2, Timestamp: time.Now()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame quoteFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Ticker != "6758" {
		t.Fatalf("got ticker %q, want filtered stream to deliver 6758 only", frame.Ticker)
	}
}
