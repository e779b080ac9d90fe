package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"Kessan/internal/datasource"
	"Kessan/internal/domain/models"
	xhttp "Kessan/pkg/http"
	xlogger "Kessan/pkg/logger"
)

// DatasourcesHandler exposes the adapter registry for operators.
type DatasourcesHandler struct {
	logger   *xlogger.Logger
	registry *datasource.Registry

	middlewares []echo.MiddlewareFunc
}

func NewDatasourcesHandler(logger *xlogger.Logger, registry *datasource.Registry, middlewares ...echo.MiddlewareFunc) *DatasourcesHandler {
	return &DatasourcesHandler{logger: logger, registry: registry, middlewares: middlewares}
}

func (h *DatasourcesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/datasources", h.middlewares...)
	g.GET("", h.List)
	g.POST("/failover/enable", h.EnableFailover)
	g.POST("/failover/disable", h.DisableFailover)
	g.POST("/:name/enable", h.Enable)
	g.POST("/:name/disable", h.Disable)
	g.POST("/:name/reset-breaker", h.ResetBreaker)
	g.POST("/:name/health-check", h.HealthCheck)
}

// adapterView is the operator-facing snapshot of one adapter.
type adapterView struct {
	Name        string                   `json:"name"`
	Capability  string                   `json:"capability"`
	Priority    int                      `json:"priority"`
	Enabled     bool                     `json:"enabled"`
	BreakerOpen bool                     `json:"breaker_open"`
	Health      string                   `json:"health"`
	CheckedAt   *time.Time               `json:"checked_at,omitempty"`
	RateLimit   datasource.RateLimitInfo `json:"rate_limit"`
	Cost        datasource.CostInfo      `json:"cost"`
}

func (h *DatasourcesHandler) List(c echo.Context) error {
	var views []adapterView
	for _, capability := range []datasource.Capability{
		datasource.CapabilityStockPrice,
		datasource.CapabilityFinancialData,
		datasource.CapabilityNews,
	} {
		for _, a := range h.registry.AdaptersByCapability(capability) {
			view := adapterView{
				Name:        a.Name(),
				Capability:  string(a.Capability()),
				Priority:    a.Priority(),
				Enabled:     a.Enabled(),
				BreakerOpen: h.registry.BreakerOpen(a.Name()),
				Health:      string(models.HealthUnknown),
				RateLimit:   a.RateLimitInfo(),
				Cost:        a.CostInfo(),
			}
			if check, ok := h.registry.CachedHealth(a.Name()); ok {
				view.Health = string(check.State)
				at := check.CheckedAt
				view.CheckedAt = &at
			}
			views = append(views, view)
		}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"failover_enabled": h.registry.FailoverEnabled(),
		"adapters":         views,
	})
}

func (h *DatasourcesHandler) Enable(c echo.Context) error {
	return h.setEnabled(c, true)
}

func (h *DatasourcesHandler) Disable(c echo.Context) error {
	return h.setEnabled(c, false)
}

func (h *DatasourcesHandler) setEnabled(c echo.Context, enabled bool) error {
	name := c.Param("name")
	adapter, err := h.registry.Get(name)
	if err != nil {
		if errors.Is(err, datasource.ErrAdapterNotFound) {
			return xhttp.NotFoundResponse(c, "unknown data source")
		}
		return xhttp.InternalServerErrorResponse(c)
	}
	adapter.SetEnabled(enabled)
	h.logger.Info("data source toggled",
		xlogger.String("source", name),
		xlogger.Bool("enabled", enabled))
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"name":    name,
		"enabled": enabled,
	})
}

func (h *DatasourcesHandler) ResetBreaker(c echo.Context) error {
	name := c.Param("name")
	if !h.registry.ResetBreaker(name) {
		return xhttp.NotFoundResponse(c, "unknown data source")
	}
	h.logger.Info("circuit breaker reset", xlogger.String("source", name))
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"name":         name,
		"breaker_open": false,
	})
}

func (h *DatasourcesHandler) HealthCheck(c echo.Context) error {
	name := c.Param("name")
	check, err := h.registry.RefreshHealth(c.Request().Context(), name)
	if err != nil {
		if errors.Is(err, datasource.ErrAdapterNotFound) {
			return xhttp.NotFoundResponse(c, "unknown data source")
		}
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, check)
}

func (h *DatasourcesHandler) EnableFailover(c echo.Context) error {
	h.registry.EnableFailover()
	return xhttp.SuccessResponse(c, map[string]interface{}{"failover_enabled": true})
}

func (h *DatasourcesHandler) DisableFailover(c echo.Context) error {
	h.registry.DisableFailover()
	return xhttp.SuccessResponse(c, map[string]interface{}{"failover_enabled": false})
}
