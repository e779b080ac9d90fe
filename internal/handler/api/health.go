package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"Kessan/internal/datasource"
	"Kessan/internal/domain/models"
	domrepo "Kessan/internal/domain/repository"
	xhttp "Kessan/pkg/http"
	xlogger "Kessan/pkg/logger"
)

// QueueInspector reports backlog depths for the job queue.
type QueueInspector interface {
	Depth(ctx context.Context) (int64, error)
	DeadLetterDepth(ctx context.Context) (int64, error)
}

// CachePinger checks the cache backend.
type CachePinger interface {
	Exists(ctx context.Context, keys ...string) (bool, error)
}

// HealthHandler serves liveness, readiness and per-subsystem probes.
type HealthHandler struct {
	logger   *xlogger.Logger
	stocks   domrepo.StockStore
	prices   domrepo.PriceStore
	registry *datasource.Registry
	queue    QueueInspector
	cache    CachePinger

	startedAt time.Time
}

func NewHealthHandler(
	logger *xlogger.Logger,
	stocks domrepo.StockStore,
	prices domrepo.PriceStore,
	registry *datasource.Registry,
	queue QueueInspector,
	cacheSvc CachePinger,
) *HealthHandler {
	return &HealthHandler{
		logger:    logger,
		stocks:    stocks,
		prices:    prices,
		registry:  registry,
		queue:     queue,
		cache:     cacheSvc,
		startedAt: time.Now(),
	}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/health")
	g.GET("", h.Overall)
	g.GET("/live", h.Live)
	g.GET("/ready", h.Ready)
	g.GET("/database", h.Database)
	g.GET("/data-sources", h.DataSources)
	g.GET("/external-apis", h.ExternalAPIs)
	g.GET("/resources", h.Resources)
}

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func statusOf(err error) componentStatus {
	if err != nil {
		return componentStatus{Status: "unhealthy", Error: err.Error()}
	}
	return componentStatus{Status: "healthy"}
}

func (h *HealthHandler) Overall(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	components := map[string]componentStatus{
		"postgres":   statusOf(h.stocks.Health(ctx)),
		"clickhouse": statusOf(h.prices.Health(ctx)),
	}
	if h.cache != nil {
		_, err := h.cache.Exists(ctx, "kessan:health:probe")
		components["redis"] = statusOf(err)
	}

	sources := h.registry.HealthSnapshot()
	healthySources := 0
	for _, s := range sources {
		if s.Healthy() {
			healthySources++
		}
	}
	if len(sources) > 0 && healthySources == 0 {
		components["data_sources"] = componentStatus{Status: "unhealthy", Error: "no healthy data source"}
	} else {
		components["data_sources"] = componentStatus{Status: "healthy"}
	}

	status := http.StatusOK
	overall := "healthy"
	for _, cs := range components {
		if cs.Status != "healthy" {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
			break
		}
	}

	return xhttp.DataResponse(c, status, map[string]interface{}{
		"status":     overall,
		"uptime_sec": int64(time.Since(h.startedAt).Seconds()),
		"components": components,
	})
}

func (h *HealthHandler) Live(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "alive"})
}

// Ready gates on the stores the request path cannot work without.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.stocks.Health(ctx); err != nil {
		return xhttp.ServiceUnavailableResponse(c, "postgres not ready")
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ready"})
}

func (h *HealthHandler) Database(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	components := map[string]componentStatus{
		"postgres":   statusOf(h.stocks.Health(ctx)),
		"clickhouse": statusOf(h.prices.Health(ctx)),
	}
	status := http.StatusOK
	for _, cs := range components {
		if cs.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
	}
	return xhttp.DataResponse(c, status, components)
}

// DataSources reports the cached registry view without probing.
func (h *HealthHandler) DataSources(c echo.Context) error {
	checks := h.registry.HealthSnapshot()
	healthy := 0
	for _, check := range checks {
		if check.Healthy() {
			healthy++
		}
	}
	status := http.StatusOK
	if len(checks) > 0 && healthy == 0 {
		status = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, status, map[string]interface{}{
		"healthy": healthy,
		"total":   len(checks),
		"sources": checks,
	})
}

// ExternalAPIs probes every adapter live. Slow by design; operator use.
func (h *HealthHandler) ExternalAPIs(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	results := make(map[string]models.HealthCheck)
	for _, capability := range []datasource.Capability{
		datasource.CapabilityStockPrice,
		datasource.CapabilityFinancialData,
		datasource.CapabilityNews,
	} {
		for _, a := range h.registry.AdaptersByCapability(capability) {
			if !a.Enabled() {
				continue
			}
			check, err := h.registry.RefreshHealth(ctx, a.Name())
			if err != nil {
				h.logger.Warn("health probe failed",
					xlogger.String("source", a.Name()),
					xlogger.Error(err))
				continue
			}
			results[a.Name()] = check
		}
	}
	return xhttp.SuccessResponse(c, results)
}

func (h *HealthHandler) Resources(c echo.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	out := map[string]interface{}{
		"goroutines":      runtime.NumGoroutine(),
		"heap_alloc_mb":   mem.HeapAlloc / 1024 / 1024,
		"heap_sys_mb":     mem.HeapSys / 1024 / 1024,
		"gc_runs":         mem.NumGC,
		"uptime_sec":      int64(time.Since(h.startedAt).Seconds()),
	}
	if h.queue != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if depth, err := h.queue.Depth(ctx); err == nil {
			out["queue_depth"] = depth
		}
		if dlq, err := h.queue.DeadLetterDepth(ctx); err == nil {
			out["dead_letter_depth"] = dlq
		}
	}
	return xhttp.SuccessResponse(c, out)
}
