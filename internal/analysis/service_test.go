package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	applogger "Kessan/pkg/logger"
)

type nopMetrics struct {
	tokens map[string]int64
}

func (m *nopMetrics) RecordProviderRequest(string, string, string) {}
func (m *nopMetrics) RecordFailover(string, string)                {}
func (m *nopMetrics) RecordBreakerState(string, bool)              {}
func (m *nopMetrics) RecordAdapterHealth(string, bool)             {}
func (m *nopMetrics) RecordError(string)                           {}
func (m *nopMetrics) RecordLastPrice(string, float64)              {}
func (m *nopMetrics) RecordLatency(string, float64)                {}
func (m *nopMetrics) RecordNewsLink(string)                        {}
func (m *nopMetrics) RecordRelevance(float64)                      {}
func (m *nopMetrics) RecordAlert(string, string)                   {}

func (m *nopMetrics) RecordAnalysisTokens(kind string, n int64) {
	if m.tokens == nil {
		m.tokens = make(map[string]int64)
	}
	m.tokens[kind] += n
}

type fakeGenerator struct {
	insight *Insight
	usage   *Usage
	err     error
	calls   int
	prompt  string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (*Insight, *Usage, error) {
	g.calls++
	g.prompt = prompt
	if g.err != nil {
		return nil, nil, g.err
	}
	return g.insight, g.usage, nil
}

func (g *fakeGenerator) Model() string { return "test-model" }

type fakeStockStore struct {
	stocks map[string]*models.Stock
}

func (f *fakeStockStore) Upsert(context.Context, *models.Stock) error { return nil }
func (f *fakeStockStore) ListAll(context.Context) ([]*models.Stock, error) {
	return nil, nil
}
func (f *fakeStockStore) Health(context.Context) error { return nil }

func (f *fakeStockStore) GetByTicker(_ context.Context, ticker string) (*models.Stock, error) {
	s, ok := f.stocks[ticker]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

type fakePriceStore struct {
	bars []*models.PriceBar
	err  error
}

func (f *fakePriceStore) Init(context.Context) error                     { return nil }
func (f *fakePriceStore) StoreBatch(context.Context, []*models.PriceBar) error { return nil }
func (f *fakePriceStore) Health(context.Context) error                   { return nil }
func (f *fakePriceStore) Close() error                                   { return nil }

func (f *fakePriceStore) Query(context.Context, string, time.Time, time.Time, repository.Interval, int) ([]*models.PriceBar, error) {
	return f.bars, f.err
}

type fakeNewsProvider struct {
	articles []*models.NewsArticle
}

func (f *fakeNewsProvider) NewsForStock(context.Context, string, float64, int) []*models.NewsArticle {
	return f.articles
}

type fakeAnalysisStore struct {
	latest    *models.Analysis
	inserted  []*models.Analysis
	insertErr error
}

func (f *fakeAnalysisStore) Insert(_ context.Context, a *models.Analysis) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, a)
	return nil
}

func (f *fakeAnalysisStore) GetLatest(_ context.Context, ticker string, notBefore time.Time) (*models.Analysis, error) {
	if f.latest == nil || f.latest.Ticker != ticker || f.latest.CreatedAt.Before(notBefore) {
		return nil, nil
	}
	return f.latest, nil
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	lgr, err := applogger.New(&applogger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lgr
}

func testService(t *testing.T, gen *fakeGenerator, store *fakeAnalysisStore, opts ...ServiceOption) *Service {
	t.Helper()
	stocks := &fakeStockStore{stocks: map[string]*models.Stock{
		"7203": {Ticker: "7203", Name: "トヨタ自動車株式会社", NameEn: "Toyota Motor Corporation", Sector: "自動車"},
	}}
	prices := &fakePriceStore{bars: []*models.PriceBar{
		{Ticker: "7203", Bucket: time.Now().Add(-48 * time.Hour), Close: 3000, Volume: 1e6},
		{Ticker: "7203", Bucket: time.Now().Add(-24 * time.Hour), Close: 3100, Volume: 1.2e6},
	}}
	news := &fakeNewsProvider{articles: []*models.NewsArticle{
		{ID: "a1", Title: "トヨタ、今期営業利益を上方修正", PublishedAt: time.Now().Add(-6 * time.Hour)},
	}}
	return NewService(testLogger(t), &nopMetrics{}, gen, stocks, prices, news, store, nil, opts...)
}

func TestAnalyzeGeneratesAndPersists(t *testing.T) {
	gen := &fakeGenerator{
		insight: &Insight{Summary: "strong quarter", Outlook: "bullish", Risks: []string{"fx"}, Confidence: 0.8},
		usage:   &Usage{PromptTokens: 120, CompletionTokens: 45},
	}
	store := &fakeAnalysisStore{}
	svc := testService(t, gen, store)

	a, err := svc.Analyze(context.Background(), "7203", false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Outlook != "bullish" || a.Summary != "strong quarter" {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if a.Model != "test-model" {
		t.Fatalf("model = %q, want test-model", a.Model)
	}
	if a.PromptTokens != 120 || a.CompletionTokens != 45 {
		t.Fatalf("token counts = %d/%d", a.PromptTokens, a.CompletionTokens)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d analyses, want 1", len(store.inserted))
	}
	if !strings.Contains(gen.prompt, "トヨタ自動車株式会社") || !strings.Contains(gen.prompt, "上方修正") {
		t.Fatalf("prompt missing stock context:\n%s", gen.prompt)
	}
}

func TestAnalyzeServesFreshStoredNote(t *testing.T) {
	gen := &fakeGenerator{insight: &Insight{Summary: "new", Outlook: "neutral"}}
	store := &fakeAnalysisStore{latest: &models.Analysis{
		ID:        "existing",
		Ticker:    "7203",
		Summary:   "cached note",
		Outlook:   "neutral",
		CreatedAt: time.Now().Add(-time.Hour),
	}}
	svc := testService(t, gen, store)

	a, err := svc.Analyze(context.Background(), "7203", false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.ID != "existing" {
		t.Fatalf("got analysis %q, want cached note", a.ID)
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times, want 0", gen.calls)
	}
}

func TestAnalyzeRefreshSkipsCache(t *testing.T) {
	gen := &fakeGenerator{insight: &Insight{Summary: "regenerated", Outlook: "bearish", Confidence: 0.4}}
	store := &fakeAnalysisStore{latest: &models.Analysis{
		ID:        "existing",
		Ticker:    "7203",
		CreatedAt: time.Now().Add(-time.Hour),
	}}
	svc := testService(t, gen, store)

	a, err := svc.Analyze(context.Background(), "7203", true)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Summary != "regenerated" {
		t.Fatalf("summary = %q, want regenerated", a.Summary)
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times, want 1", gen.calls)
	}
}

func TestAnalyzeStaleStoredNoteRegenerated(t *testing.T) {
	gen := &fakeGenerator{insight: &Insight{Summary: "fresh", Outlook: "neutral"}}
	store := &fakeAnalysisStore{latest: &models.Analysis{
		ID:        "stale",
		Ticker:    "7203",
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}}
	svc := testService(t, gen, store, WithCacheTTL(6*time.Hour))

	a, err := svc.Analyze(context.Background(), "7203", false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.ID == "stale" {
		t.Fatal("stale note served past its freshness window")
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times, want 1", gen.calls)
	}
}

func TestAnalyzeUnknownTicker(t *testing.T) {
	gen := &fakeGenerator{insight: &Insight{}}
	svc := testService(t, gen, &fakeAnalysisStore{})

	if _, err := svc.Analyze(context.Background(), "0000", false); err == nil {
		t.Fatal("expected error for unknown ticker")
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times, want 0", gen.calls)
	}
}

func TestAnalyzeSurvivesStoreFailure(t *testing.T) {
	gen := &fakeGenerator{insight: &Insight{Summary: "ok", Outlook: "neutral"}}
	store := &fakeAnalysisStore{insertErr: errors.New("db down")}
	svc := testService(t, gen, store)

	a, err := svc.Analyze(context.Background(), "7203", false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Summary != "ok" {
		t.Fatalf("summary = %q", a.Summary)
	}
}

func TestAnalyzeRecordsTokenMetrics(t *testing.T) {
	gen := &fakeGenerator{
		insight: &Insight{Summary: "ok", Outlook: "neutral"},
		usage:   &Usage{PromptTokens: 200, CompletionTokens: 80},
	}
	m := &nopMetrics{}
	stocks := &fakeStockStore{stocks: map[string]*models.Stock{
		"7203": {Ticker: "7203", Name: "トヨタ自動車"},
	}}
	svc := NewService(testLogger(t), m, gen, stocks, &fakePriceStore{}, &fakeNewsProvider{}, &fakeAnalysisStore{}, nil)

	if _, err := svc.Analyze(context.Background(), "7203", false); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if m.tokens["prompt"] != 200 || m.tokens["completion"] != 80 {
		t.Fatalf("token metrics = %+v", m.tokens)
	}
}

func TestParseInsightCodeFence(t *testing.T) {
	raw := "```json\n{\"summary\": \"s\", \"outlook\": \"bullish\", \"risks\": [\"r\"], \"confidence\": 1.4}\n```"
	insight, err := parseInsight(raw)
	if err != nil {
		t.Fatalf("parseInsight: %v", err)
	}
	if insight.Outlook != "bullish" {
		t.Fatalf("outlook = %q", insight.Outlook)
	}
	if insight.Confidence != 1 {
		t.Fatalf("confidence = %v, want clamped to 1", insight.Confidence)
	}
}

func TestParseInsightUnknownOutlookNormalized(t *testing.T) {
	insight, err := parseInsight(`{"summary": "s", "outlook": "sideways", "confidence": -0.2}`)
	if err != nil {
		t.Fatalf("parseInsight: %v", err)
	}
	if insight.Outlook != "neutral" {
		t.Fatalf("outlook = %q, want neutral", insight.Outlook)
	}
	if insight.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", insight.Confidence)
	}
}
