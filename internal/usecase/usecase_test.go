package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"Kessan/internal/datasource"
	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
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
	name       string
	priority   int
	capability datasource.Capability
	enabled    bool

	quote    *models.Quote
	bars     []*models.PriceBar
	matches  []*models.SymbolMatch
	articles []*models.NewsArticle
	err      error

	fetchCalls int
}

func (a *stubAdapter) Name() string                       { return a.name }
func (a *stubAdapter) Priority() int                      { return a.priority }
func (a *stubAdapter) Capability() datasource.Capability  { return a.capability }
func (a *stubAdapter) Enabled() bool                      { return a.enabled }
func (a *stubAdapter) SetEnabled(v bool)                  { a.enabled = v }
func (a *stubAdapter) RateLimitInfo() datasource.RateLimitInfo { return datasource.RateLimitInfo{} }
func (a *stubAdapter) CostInfo() datasource.CostInfo      { return datasource.CostInfo{} }

func (a *stubAdapter) HealthCheck(context.Context) models.HealthCheck {
	return models.HealthCheck{Source: a.name, State: models.HealthHealthy, CheckedAt: time.Now()}
}

func (a *stubAdapter) CurrentPrice(context.Context, string) (*models.Quote, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.quote, nil
}

func (a *stubAdapter) HistoricalPrices(context.Context, string, time.Time, time.Time, repository.Interval) ([]*models.PriceBar, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.bars, nil
}

func (a *stubAdapter) SearchSymbols(context.Context, string) ([]*models.SymbolMatch, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.matches, nil
}

func (a *stubAdapter) FetchNews(context.Context, int) ([]*models.NewsArticle, error) {
	a.fetchCalls++
	if a.err != nil {
		return nil, a.err
	}
	return a.articles, nil
}

type fakePriceStore struct {
	stored []*models.PriceBar
	err    error
}

func (f *fakePriceStore) Init(context.Context) error   { return nil }
func (f *fakePriceStore) Health(context.Context) error { return nil }
func (f *fakePriceStore) Close() error                 { return nil }

func (f *fakePriceStore) StoreBatch(_ context.Context, bars []*models.PriceBar) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, bars...)
	return nil
}

func (f *fakePriceStore) Query(context.Context, string, time.Time, time.Time, repository.Interval, int) ([]*models.PriceBar, error) {
	return f.stored, nil
}

type fakeNewsStore struct {
	byID     map[string]*models.NewsArticle
	hashes   map[string]bool
	inserted []*models.NewsArticle
}

func newFakeNewsStore() *fakeNewsStore {
	return &fakeNewsStore{byID: make(map[string]*models.NewsArticle), hashes: make(map[string]bool)}
}

func (f *fakeNewsStore) Insert(_ context.Context, a *models.NewsArticle) error {
	f.inserted = append(f.inserted, a)
	f.byID[a.ID] = a
	f.hashes[a.ContentHash] = true
	return nil
}

func (f *fakeNewsStore) GetByID(_ context.Context, id string) (*models.NewsArticle, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return a, nil
}

func (f *fakeNewsStore) ExistsByHash(_ context.Context, hash string) (bool, error) {
	return f.hashes[hash], nil
}

func (f *fakeNewsStore) ListRecent(context.Context, int) ([]*models.NewsArticle, error) {
	return f.inserted, nil
}

func (f *fakeNewsStore) CountAll(context.Context) (int64, error) {
	return int64(len(f.inserted)), nil
}

type fakePublisher struct {
	published []*models.NewsArticle
	err       error
}

func (f *fakePublisher) PublishArticle(_ context.Context, a *models.NewsArticle) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, a)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeJobQueue struct {
	messages []struct {
		Type    string
		Payload interface{}
	}
	err error
}

func (f *fakeJobQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, struct {
		Type    string
		Payload interface{}
	}{msgType, payload})
	return nil
}

type fakeBroadcaster struct {
	quotes []*models.Quote
}

func (f *fakeBroadcaster) BroadcastQuote(q *models.Quote) {
	f.quotes = append(f.quotes, q)
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	lgr, err := applogger.New(&applogger.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lgr
}

func testRegistry(t *testing.T, adapters ...datasource.Adapter) *datasource.Registry {
	t.Helper()
	reg := datasource.NewRegistry(testLogger(t), nopMetrics{})
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			t.Fatalf("register %s: %v", a.Name(), err)
		}
	}
	return reg
}

func TestCurrentPriceFailsOverAndBroadcasts(t *testing.T) {
	primary := &stubAdapter{
		name: "primary", priority: 10, capability: datasource.CapabilityStockPrice,
		enabled: true, err: errors.New("upstream down"),
	}
	backup := &stubAdapter{
		name: "backup", priority: 20, capability: datasource.CapabilityStockPrice,
		enabled: true, quote: &models.Quote{Price: 3010, Source: "backup"},
	}
	reg := testRegistry(t, primary, backup)

	bc := &fakeBroadcaster{}
	svc := NewPriceService(testLogger(t), nopMetrics{}, reg, nil, &fakePriceStore{},
		WithBroadcaster(bc))

	q, err := svc.CurrentPrice(context.Background(), "7203")
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if q.Source != "backup" || q.Ticker != "7203" {
		t.Fatalf("quote = %+v", q)
	}
	if len(bc.quotes) != 1 {
		t.Fatalf("broadcast %d quotes, want 1", len(bc.quotes))
	}
}

func TestHistoricalPersistsBars(t *testing.T) {
	adapter := &stubAdapter{
		name: "primary", priority: 10, capability: datasource.CapabilityStockPrice,
		enabled: true,
		bars: []*models.PriceBar{
			{Ticker: "7203", Close: 3000, Interval: "1d"},
			{Ticker: "7203", Close: 3100, Interval: "1d"},
		},
	}
	reg := testRegistry(t, adapter)
	store := &fakePriceStore{}
	svc := NewPriceService(testLogger(t), nopMetrics{}, reg, nil, store)

	bars, err := svc.Historical(context.Background(), "7203",
		time.Now().Add(-48*time.Hour), time.Now(), repository.Interval1d, 0)
	if err != nil {
		t.Fatalf("Historical: %v", err)
	}
	if len(bars) != 2 || len(store.stored) != 2 {
		t.Fatalf("bars=%d stored=%d, want 2/2", len(bars), len(store.stored))
	}
}

func TestHistoricalSurvivesStoreFailure(t *testing.T) {
	adapter := &stubAdapter{
		name: "primary", priority: 10, capability: datasource.CapabilityStockPrice,
		enabled: true,
		bars:    []*models.PriceBar{{Ticker: "7203", Close: 3000, Interval: "1d"}},
	}
	reg := testRegistry(t, adapter)
	svc := NewPriceService(testLogger(t), nopMetrics{}, reg, nil, &fakePriceStore{err: errors.New("ch down")})

	bars, err := svc.Historical(context.Background(), "7203",
		time.Now().Add(-48*time.Hour), time.Now(), repository.Interval1d, 0)
	if err != nil {
		t.Fatalf("Historical: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("bars = %d, want 1", len(bars))
	}
}

func TestHistoricalLimitKeepsNewestBars(t *testing.T) {
	adapter := &stubAdapter{
		name: "primary", priority: 10, capability: datasource.CapabilityStockPrice,
		enabled: true,
		bars: []*models.PriceBar{
			{Ticker: "7203", Close: 1, Interval: "1d"},
			{Ticker: "7203", Close: 2, Interval: "1d"},
			{Ticker: "7203", Close: 3, Interval: "1d"},
		},
	}
	reg := testRegistry(t, adapter)
	svc := NewPriceService(testLogger(t), nopMetrics{}, reg, nil, &fakePriceStore{})

	bars, err := svc.Historical(context.Background(), "7203",
		time.Now().Add(-72*time.Hour), time.Now(), repository.Interval1d, 2)
	if err != nil {
		t.Fatalf("Historical: %v", err)
	}
	if len(bars) != 2 || bars[0].Close != 2 || bars[1].Close != 3 {
		t.Fatalf("unexpected clip: %+v", bars)
	}
}

func TestIngestOnceDedupesAndPublishes(t *testing.T) {
	source := &stubAdapter{
		name: "news_src", priority: 10, capability: datasource.CapabilityNews, enabled: true,
		articles: []*models.NewsArticle{
			{ID: "a1", ContentHash: "h1", Title: "fresh"},
			{ID: "a2", ContentHash: "h2", Title: "seen before"},
		},
	}
	reg := testRegistry(t, source)

	news := newFakeNewsStore()
	news.hashes["h2"] = true
	pub := &fakePublisher{}

	ing := NewNewsIngestor(testLogger(t), nopMetrics{}, reg, news, pub)
	published := ing.IngestOnce(context.Background())
	if published != 1 {
		t.Fatalf("published = %d, want 1", published)
	}
	if len(pub.published) != 1 || pub.published[0].ID != "a1" {
		t.Fatalf("unexpected published set: %+v", pub.published)
	}
}

func TestIngestOnceThrottlesSource(t *testing.T) {
	source := &stubAdapter{
		name: "news_src", priority: 10, capability: datasource.CapabilityNews, enabled: true,
		articles: []*models.NewsArticle{{ID: "a1", ContentHash: "h1"}},
	}
	reg := testRegistry(t, source)

	ing := NewNewsIngestor(testLogger(t), nopMetrics{}, reg, newFakeNewsStore(), &fakePublisher{},
		WithSourceGap(time.Hour))

	ing.IngestOnce(context.Background())
	ing.IngestOnce(context.Background())
	if source.fetchCalls != 1 {
		t.Fatalf("fetch calls = %d, want 1 within source gap", source.fetchCalls)
	}
}

func TestIngestRateLimitSkipsSource(t *testing.T) {
	source := &stubAdapter{
		name: "news_src", priority: 10, capability: datasource.CapabilityNews, enabled: true,
		err: &datasource.RateLimitError{Source: "news_src", RetryAfter: time.Minute},
	}
	reg := testRegistry(t, source)

	ing := NewNewsIngestor(testLogger(t), nopMetrics{}, reg, newFakeNewsStore(), &fakePublisher{})
	if got := ing.IngestOnce(context.Background()); got != 0 {
		t.Fatalf("published = %d, want 0", got)
	}
}

func TestArticlesHandlerPersistsAndEnqueues(t *testing.T) {
	news := newFakeNewsStore()
	jobs := &fakeJobQueue{}
	h := NewArticlesHandler(testLogger(t), nopMetrics{}, news, jobs, "kessan.news.articles")

	if h.Topic() != "kessan.news.articles" {
		t.Fatalf("topic = %q", h.Topic())
	}

	article := models.NewsArticle{ID: "a1", ContentHash: "h1", Title: "t", Source: "s", PublishedAt: time.Now()}
	payload, _ := json.Marshal(article)
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(news.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(news.inserted))
	}
	if len(jobs.messages) != 1 || jobs.messages[0].Type != MappingMessageType {
		t.Fatalf("queued = %+v", jobs.messages)
	}
}

func TestArticlesHandlerRejectsIncompletePayload(t *testing.T) {
	h := NewArticlesHandler(testLogger(t), nopMetrics{}, newFakeNewsStore(), &fakeJobQueue{}, "t")

	if err := h.Handle(context.Background(), []byte(`{"Title": "no id"}`)); err == nil {
		t.Fatal("expected error for article without id")
	}
	if err := h.Handle(context.Background(), []byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestArticlesHandlerEnqueueFailureDoesNotFailMessage(t *testing.T) {
	news := newFakeNewsStore()
	h := NewArticlesHandler(testLogger(t), nopMetrics{}, news, &fakeJobQueue{err: errors.New("redis down")}, "t")

	article := models.NewsArticle{ID: "a1", ContentHash: "h1"}
	payload, _ := json.Marshal(article)
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("Handle should not fail when only enqueue fails: %v", err)
	}
	if len(news.inserted) != 1 {
		t.Fatalf("article not persisted")
	}
}
