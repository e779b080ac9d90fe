package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	providerRequests *prometheus.CounterVec
	failovers        *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	adapterHealth    *prometheus.GaugeVec
	errorsTotal      *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
	newsLinks        *prometheus.CounterVec
	relevance        prometheus.Histogram
	analysisTokens   *prometheus.CounterVec
	alertsFired      *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		providerRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kessan_provider_requests_total",
				Help: "Total number of requests executed against external data providers",
			},
			[]string{"source", "operation", "outcome"},
		),
		failovers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kessan_failovers_total",
				Help: "Total number of failover hops between adapters",
			},
			[]string{"capability", "from"},
		),
		breakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kessan_breaker_open",
				Help: "Circuit breaker state per adapter (1 = open)",
			},
			[]string{"source"},
		),
		adapterHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kessan_adapter_healthy",
				Help: "Cached health status per adapter (1 = healthy)",
			},
			[]string{"source"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kessan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kessan_last_price",
				Help: "Last recorded price for a ticker",
			},
			[]string{"ticker"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kessan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		newsLinks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kessan_news_links_total",
				Help: "Total number of stock-news links created",
			},
			[]string{"outcome"},
		),
		relevance: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kessan_news_relevance_score",
				Help:    "Distribution of computed news relevance scores",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.7, 0.9, 1},
			},
		),
		analysisTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kessan_analysis_tokens_total",
				Help: "Total number of LLM tokens consumed by analysis generation",
			},
			[]string{"kind"},
		),
		alertsFired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kessan_alerts_total",
				Help: "Total number of alert transitions",
			},
			[]string{"alert", "transition"},
		),
	}
}

// RecordProviderRequest records one call against an external provider.
func (r *Recorder) RecordProviderRequest(source, operation, outcome string) {
	r.providerRequests.WithLabelValues(source, operation, outcome).Inc()
}

// RecordFailover records a failover hop away from an adapter.
func (r *Recorder) RecordFailover(capability, from string) {
	r.failovers.WithLabelValues(capability, from).Inc()
}

// RecordBreakerState records circuit breaker state for an adapter.
func (r *Recorder) RecordBreakerState(source string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	r.breakerState.WithLabelValues(source).Set(v)
}

// RecordAdapterHealth records cached health for an adapter.
func (r *Recorder) RecordAdapterHealth(source string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	r.adapterHealth.WithLabelValues(source).Set(v)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a ticker.
func (r *Recorder) RecordLastPrice(ticker string, price float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordNewsLink records a created or skipped stock-news link.
func (r *Recorder) RecordNewsLink(outcome string) {
	r.newsLinks.WithLabelValues(outcome).Inc()
}

// RecordRelevance records a computed relevance score.
func (r *Recorder) RecordRelevance(score float64) {
	r.relevance.Observe(score)
}

// RecordAnalysisTokens records LLM token usage.
func (r *Recorder) RecordAnalysisTokens(kind string, n int64) {
	r.analysisTokens.WithLabelValues(kind).Add(float64(n))
}

// RecordAlert records an alert transition (triggered or resolved).
func (r *Recorder) RecordAlert(alert, transition string) {
	r.alertsFired.WithLabelValues(alert, transition).Inc()
}
