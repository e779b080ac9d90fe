package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	applogger "Kessan/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordProviderRequest(source, operation, outcome string) {}
func (nopMetrics) RecordFailover(capability, from string)                  {}
func (nopMetrics) RecordBreakerState(source string, open bool)             {}
func (nopMetrics) RecordAdapterHealth(source string, healthy bool)         {}
func (nopMetrics) RecordError(kind string)                                 {}
func (nopMetrics) RecordLastPrice(ticker string, price float64)            {}
func (nopMetrics) RecordLatency(op string, seconds float64)                {}
func (nopMetrics) RecordNewsLink(outcome string)                           {}
func (nopMetrics) RecordRelevance(score float64)                           {}
func (nopMetrics) RecordAnalysisTokens(kind string, n int64)               {}
func (nopMetrics) RecordAlert(alert, transition string)                    {}

type mockAdapter struct {
	baseAdapter
	calls int
	err   error
	quote *models.Quote
}

func newMockAdapter(name string, priority int, err error) *mockAdapter {
	return &mockAdapter{
		baseAdapter: newBaseAdapter(name, priority, CapabilityStockPrice,
			newLimiter(name, 0, 0, 0, nil), CostInfo{}),
		err:   err,
		quote: &models.Quote{Ticker: "7203", Price: 3000, Source: name},
	}
}

func (m *mockAdapter) HealthCheck(ctx context.Context) models.HealthCheck {
	return models.HealthCheck{Source: m.name, State: models.HealthHealthy, CheckedAt: time.Now()}
}

func (m *mockAdapter) CurrentPrice(ctx context.Context, symbol string) (*models.Quote, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.quote, nil
}

func (m *mockAdapter) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval repository.Interval) ([]*models.PriceBar, error) {
	return nil, nil
}

func (m *mockAdapter) SearchSymbols(ctx context.Context, query string) ([]*models.SymbolMatch, error) {
	return nil, nil
}

func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	lgr, err := applogger.New(&applogger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	return NewRegistry(lgr, nopMetrics{}, opts...)
}

func priceOp(ctx context.Context, a Adapter) (any, error) {
	return a.CurrentPrice(ctx, "7203")
}

func TestAdaptersByCapabilitySortedByPriority(t *testing.T) {
	r := newTestRegistry(t)
	for _, m := range []*mockAdapter{
		newMockAdapter("c", 30, nil),
		newMockAdapter("a", 10, nil),
		newMockAdapter("b", 20, nil),
	} {
		if err := r.Register(m); err != nil {
			t.Fatalf("register %s: %v", m.Name(), err)
		}
	}

	got := r.AdaptersByCapability(CapabilityStockPrice)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d adapters, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name() != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, got[i].Name())
		}
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(newMockAdapter("dup", 10, nil)); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(newMockAdapter("dup", 20, nil)); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestUnregisterNotFound(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Unregister("missing")
	if !errors.Is(err, ErrAdapterNotFound) {
		t.Fatalf("expected ErrAdapterNotFound, got %v", err)
	}
}

func TestPrimaryAdapterSkipsUnhealthy(t *testing.T) {
	r := newTestRegistry(t)
	for _, m := range []*mockAdapter{
		newMockAdapter("first", 10, nil),
		newMockAdapter("second", 20, nil),
		newMockAdapter("third", 30, nil),
	} {
		if err := r.Register(m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	now := time.Now()
	r.SetHealth(models.HealthCheck{Source: "first", State: models.HealthUnhealthy, CheckedAt: now})
	r.SetHealth(models.HealthCheck{Source: "second", State: models.HealthHealthy, CheckedAt: now})
	r.SetHealth(models.HealthCheck{Source: "third", State: models.HealthDegraded, CheckedAt: now})

	primary, err := r.PrimaryAdapter(CapabilityStockPrice)
	if err != nil {
		t.Fatalf("primary adapter: %v", err)
	}
	if primary.Name() != "second" {
		t.Fatalf("expected second as primary, got %s", primary.Name())
	}
}

func TestStaleHealthPassesFilter(t *testing.T) {
	r := newTestRegistry(t, WithHealthCacheTTL(time.Minute))
	m := newMockAdapter("stale", 10, nil)
	if err := r.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.SetHealth(models.HealthCheck{
		Source:    "stale",
		State:     models.HealthUnhealthy,
		CheckedAt: time.Now().Add(-2 * time.Minute),
	})

	if got := r.HealthyAdapters(CapabilityStockPrice); len(got) != 1 {
		t.Fatalf("expected stale probe to pass the filter, got %d adapters", len(got))
	}
}

func TestExecuteWithFailover(t *testing.T) {
	r := newTestRegistry(t)
	failing := newMockAdapter("failing", 10, &UnavailableError{Source: "failing"})
	working := newMockAdapter("working", 20, nil)
	for _, m := range []*mockAdapter{failing, working} {
		if err := r.Register(m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	result, err := r.ExecuteWithFailover(context.Background(), CapabilityStockPrice, priceOp)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	quote := result.(*models.Quote)
	if quote.Source != "working" {
		t.Fatalf("expected quote from working adapter, got %s", quote.Source)
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Fatalf("expected one call each, got failing=%d working=%d", failing.calls, working.calls)
	}
}

func TestExecuteExhaustionReturnsUnavailable(t *testing.T) {
	r := newTestRegistry(t)
	for _, m := range []*mockAdapter{
		newMockAdapter("one", 10, &UnavailableError{Source: "one"}),
		newMockAdapter("two", 20, &UnavailableError{Source: "two"}),
	} {
		if err := r.Register(m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	_, err := r.ExecuteWithFailover(context.Background(), CapabilityStockPrice, priceOp)
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
}

func TestRateLimitPropagatesWithoutFailover(t *testing.T) {
	r := newTestRegistry(t)
	limited := newMockAdapter("limited", 10, &RateLimitError{Source: "limited"})
	backup := newMockAdapter("backup", 20, nil)
	for _, m := range []*mockAdapter{limited, backup} {
		if err := r.Register(m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	_, err := r.ExecuteWithFailover(context.Background(), CapabilityStockPrice, priceOp)
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if backup.calls != 0 {
		t.Fatalf("backup adapter must not be tried on rate limit, got %d calls", backup.calls)
	}
	if r.BreakerOpen("limited") {
		t.Fatal("rate limit must not count toward the breaker")
	}
}

func TestRateLimitNeverOpensBreaker(t *testing.T) {
	r := newTestRegistry(t, WithBreakerThreshold(5))
	limited := newMockAdapter("limited", 10, &RateLimitError{Source: "limited"})
	if err := r.Register(limited); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 20; i++ {
		if _, err := r.ExecuteWithFailover(context.Background(), CapabilityStockPrice, priceOp); !IsRateLimit(err) {
			t.Fatalf("attempt %d: expected rate limit error, got %v", i, err)
		}
	}
	if r.BreakerOpen("limited") {
		t.Fatal("breaker opened on rate limit errors")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	r := newTestRegistry(t, WithBreakerThreshold(5))
	failing := newMockAdapter("flaky", 10, &UnavailableError{Source: "flaky"})
	if err := r.Register(failing); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := r.ExecuteWithFailover(context.Background(), CapabilityStockPrice, priceOp); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}

	if !r.BreakerOpen("flaky") {
		t.Fatal("breaker should be open after 5 consecutive failures")
	}
	if got := r.HealthyAdapters(CapabilityStockPrice); len(got) != 0 {
		t.Fatalf("open breaker must exclude the adapter, got %d healthy", len(got))
	}

	if !r.ResetBreaker("flaky") {
		t.Fatal("reset should report an existing adapter")
	}
	if r.BreakerOpen("flaky") {
		t.Fatal("breaker should be closed after manual reset")
	}
	if got := r.HealthyAdapters(CapabilityStockPrice); len(got) != 1 {
		t.Fatalf("expected adapter back in rotation, got %d", len(got))
	}
}

func TestResetBreakerUnknownAdapter(t *testing.T) {
	r := newTestRegistry(t)
	if r.ResetBreaker("nope") {
		t.Fatal("reset of unknown adapter should report false")
	}
}

func TestDisabledFailoverUsesPrimaryOnly(t *testing.T) {
	r := newTestRegistry(t)
	failing := newMockAdapter("primary", 10, &UnavailableError{Source: "primary"})
	backup := newMockAdapter("backup", 20, nil)
	for _, m := range []*mockAdapter{failing, backup} {
		if err := r.Register(m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	r.DisableFailover()
	if _, err := r.ExecuteWithFailover(context.Background(), CapabilityStockPrice, priceOp); err == nil {
		t.Fatal("expected failure in primary-only mode")
	}
	if backup.calls != 0 {
		t.Fatalf("backup must not be tried with failover disabled, got %d calls", backup.calls)
	}

	r.EnableFailover()
	if _, err := r.ExecuteWithFailover(context.Background(), CapabilityStockPrice, priceOp); err != nil {
		t.Fatalf("expected failover to backup, got %v", err)
	}
}

func TestDisabledAdapterExcluded(t *testing.T) {
	r := newTestRegistry(t)
	m := newMockAdapter("toggled", 10, nil)
	if err := r.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.SetEnabled(false)
	if got := r.HealthyAdapters(CapabilityStockPrice); len(got) != 0 {
		t.Fatalf("disabled adapter must be excluded, got %d", len(got))
	}
	m.SetEnabled(true)
	if got := r.HealthyAdapters(CapabilityStockPrice); len(got) != 1 {
		t.Fatalf("re-enabled adapter must be included, got %d", len(got))
	}
}

func TestHealthMonitorRefreshesCache(t *testing.T) {
	r := newTestRegistry(t)
	m := newMockAdapter("probed", 10, nil)
	if err := r.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}

	r.StartHealthMonitor(50 * time.Millisecond)
	defer r.StopHealthMonitor()

	deadline := time.After(2 * time.Second)
	for {
		if h, ok := r.CachedHealth("probed"); ok && h.State == models.HealthHealthy {
			return
		}
		select {
		case <-deadline:
			t.Fatal("health monitor never cached a probe")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopHealthMonitorIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	r.StartHealthMonitor(time.Minute)
	r.StopHealthMonitor()
	r.StopHealthMonitor()
	r.StartHealthMonitor(time.Minute)
	r.StopHealthMonitor()
}
