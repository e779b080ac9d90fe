package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"Kessan/pkg/cache"
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

type memCache struct {
	counters map[string]int64
	incErr   error
}

func newMemCache() *memCache { return &memCache{counters: make(map[string]int64)} }

func (m *memCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (m *memCache) Get(context.Context, string, interface{}) error                { return cache.ErrCacheMiss }
func (m *memCache) Delete(context.Context, ...string) error                       { return nil }
func (m *memCache) DeleteByPattern(context.Context, string) error                 { return nil }
func (m *memCache) Exists(context.Context, ...string) (bool, error)               { return false, nil }
func (m *memCache) Expire(context.Context, string, time.Duration) (bool, error)   { return true, nil }
func (m *memCache) MSet(context.Context, map[string]interface{}, time.Duration) error {
	return nil
}
func (m *memCache) MGet(context.Context, ...string) (map[string]string, error) {
	return nil, nil
}
func (m *memCache) TryLock(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (m *memCache) Unlock(context.Context, string) error                         { return nil }

func (m *memCache) Increment(_ context.Context, key string) (int64, error) {
	if m.incErr != nil {
		return 0, m.incErr
	}
	m.counters[key]++
	return m.counters[key], nil
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	lgr, err := applogger.New(&applogger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lgr
}

func doRequest(t *testing.T, mw echo.MiddlewareFunc, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/api/v1/stocks/:symbol/price", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, mw)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stocks/7203/price", nil)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthAPIKeyResolvesTier(t *testing.T) {
	auth := NewAuth(map[string]string{"key-pro": "pro"}, "secret-at-least-32-characters-long!!")

	rec := doRequest(t, auth.Middleware(), func(r *http.Request) {
		r.Header.Set(APIKeyHeader, "key-pro")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRejectsUnknownKeyAndMissingCreds(t *testing.T) {
	auth := NewAuth(map[string]string{"key-pro": "pro"}, "secret-at-least-32-characters-long!!")

	if rec := doRequest(t, auth.Middleware(), func(r *http.Request) {
		r.Header.Set(APIKeyHeader, "bogus")
	}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown key status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, auth.Middleware(), nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing creds status = %d, want 401", rec.Code)
	}
}

func TestAuthJWTRoundTrip(t *testing.T) {
	auth := NewAuth(nil, "secret-at-least-32-characters-long!!")

	token, err := auth.IssueToken("alice", "enterprise", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	e := echo.New()
	var gotTier, gotKey string
	e.GET("/x", func(c echo.Context) error {
		gotTier = TierOf(c)
		gotKey = KeyOf(c)
		return c.String(http.StatusOK, "ok")
	}, auth.Middleware())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotTier != "enterprise" || gotKey != "jwt:alice" {
		t.Fatalf("tier=%q key=%q", gotTier, gotKey)
	}
}

func TestAuthExpiredJWTRejected(t *testing.T) {
	auth := NewAuth(nil, "secret-at-least-32-characters-long!!")

	token, err := auth.IssueToken("alice", "pro", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	rec := doRequest(t, auth.Middleware(), func(r *http.Request) {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func quotaRequest(t *testing.T, q *Quota, tier string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(CtxAPIKey, "key-1")
			c.Set(CtxTier, tier)
			return next(c)
		}
	}, q.Middleware())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestQuotaEnforcesTierBudget(t *testing.T) {
	q := NewQuota(testLogger(t), nopMetrics{}, newMemCache(), time.Minute,
		map[string]TierLimit{"free": {Requests: 2}})

	for i := 0; i < 2; i++ {
		if rec := quotaRequest(t, q, "free"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}
	rec := quotaRequest(t, q, "free")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 without Retry-After header")
	}
}

func TestQuotaUnknownTierPasses(t *testing.T) {
	q := NewQuota(testLogger(t), nopMetrics{}, newMemCache(), time.Minute,
		map[string]TierLimit{"free": {Requests: 1}})

	for i := 0; i < 5; i++ {
		if rec := quotaRequest(t, q, "internal"); rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 for unmetered tier", rec.Code)
		}
	}
}

func TestQuotaFailsOpenOnCounterError(t *testing.T) {
	mc := newMemCache()
	mc.incErr = errors.New("redis down")
	q := NewQuota(testLogger(t), nopMetrics{}, mc, time.Minute,
		map[string]TierLimit{"free": {Requests: 1}})

	for i := 0; i < 3; i++ {
		if rec := quotaRequest(t, q, "free"); rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 when counter is down", rec.Code)
		}
	}
}

// encodeQuery percent-encodes raw key=value pairs so they form a valid
// request target; the middleware still sees the decoded values.
func encodeQuery(raw string) string {
	q := make(url.Values)
	for _, pair := range strings.Split(raw, "&") {
		k, v, _ := strings.Cut(pair, "=")
		q.Add(k, v)
	}
	return q.Encode()
}

func TestSecurityFilterRejectsHostileInput(t *testing.T) {
	f := NewSecurityFilter(testLogger(t), nopMetrics{})

	tests := []struct {
		name  string
		query string
	}{
		{"sql injection", "q=1' OR '1"},
		{"union select", "q=x UNION SELECT password FROM users"},
		{"xss", "q=<script>alert(1)</script>"},
		{"path traversal", "q=../../etc/passwd"},
		{"command injection", "q=7203; rm -rf /"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/x", func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			}, f.Middleware())

			req := httptest.NewRequest(http.MethodGet, "/x?"+encodeQuery(tt.query), nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSecurityFilterPassesLegitimateInput(t *testing.T) {
	f := NewSecurityFilter(testLogger(t), nopMetrics{})

	tests := []struct {
		name  string
		query string
	}{
		{"ticker", "q=7203.T"},
		{"japanese", "q=トヨタ自動車の決算"},
		{"date range", "from=2026-01-01&to=2026-03-31"},
		{"mixed search", "q=Toyota Motor 決算 2026"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/x", func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			}, f.Middleware())

			req := httptest.NewRequest(http.MethodGet, "/x?"+encodeQuery(tt.query), nil)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 for %q", rec.Code, tt.query)
			}
		})
	}
}

func TestClassifyHostile(t *testing.T) {
	if got := classifyHostile("DROP TABLE stocks"); got != "sql_injection" {
		t.Fatalf("classify = %q, want sql_injection", got)
	}
	if got := classifyHostile("%2e%2e%2fetc"); got != "path_traversal" {
		t.Fatalf("classify = %q, want path_traversal", got)
	}
	if got := classifyHostile("決算発表"); got != "" {
		t.Fatalf("classify = %q, want clean", got)
	}
}
