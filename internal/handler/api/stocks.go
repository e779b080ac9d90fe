package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"Kessan/internal/analysis"
	"Kessan/internal/datasource"
	"Kessan/internal/domain/models"
	domrepo "Kessan/internal/domain/repository"
	"Kessan/internal/newsmap"
	"Kessan/internal/repository"
	"Kessan/internal/usecase"
	xhttp "Kessan/pkg/http"
	xlogger "Kessan/pkg/logger"
	"Kessan/pkg/util"
)

// StocksHandler serves the stock data and analysis surface.
type StocksHandler struct {
	logger   *xlogger.Logger
	prices   *usecase.PriceService
	mapper   *newsmap.Service
	analyzer *analysis.Service
	stocks   domrepo.StockStore

	middlewares []echo.MiddlewareFunc
}

func NewStocksHandler(
	logger *xlogger.Logger,
	prices *usecase.PriceService,
	mapper *newsmap.Service,
	analyzer *analysis.Service,
	stocks domrepo.StockStore,
	middlewares ...echo.MiddlewareFunc,
) *StocksHandler {
	return &StocksHandler{
		logger:      logger,
		prices:      prices,
		mapper:      mapper,
		analyzer:    analyzer,
		stocks:      stocks,
		middlewares: middlewares,
	}
}

func (h *StocksHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1", h.middlewares...)
	g.GET("/stocks/search", h.Search)
	g.GET("/stocks/:symbol", h.Stock)
	g.GET("/stocks/:symbol/price", h.Price)
	g.GET("/stocks/:symbol/historical", h.Historical)
	g.GET("/stocks/:symbol/news", h.News)
	g.GET("/stocks/:symbol/analysis", h.Analysis)
	g.GET("/news/:id/stocks", h.ArticleStocks)
	g.POST("/news/:id/remap", h.Remap)
	g.GET("/mapping/stats", h.MappingStats)
}

func (h *StocksHandler) Stock(c echo.Context) error {
	stock, err := h.stocks.GetByTicker(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return xhttp.NotFoundResponse(c, "unknown ticker")
		}
		h.logger.Error("stock lookup error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, stock)
}

func (h *StocksHandler) Price(c echo.Context) error {
	quote, err := h.prices.CurrentPrice(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		return h.providerError(c, "price", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, quote)
}

func (h *StocksHandler) Historical(c echo.Context) error {
	req := &models.HistoricalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	to := xhttp.ParseTimeDefault(req.To, time.Now().UTC())
	from := xhttp.ParseTimeDefault(req.From, to.AddDate(0, -1, 0))
	if !from.Before(to) {
		return xhttp.BadRequestResponse(c, "from must precede to")
	}

	interval := domrepo.NormalizeInterval(req.Interval)
	from, to = util.AlignFromTo(from, to, string(interval))

	bars, err := h.prices.Historical(c.Request().Context(), c.Param("symbol"),
		from, to, interval, req.Limit)
	if err != nil {
		return h.providerError(c, "historical", err)
	}
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

func (h *StocksHandler) Search(c echo.Context) error {
	req := &models.SearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	matches, err := h.prices.Search(c.Request().Context(), req.Query, req.Limit)
	if err != nil {
		return h.providerError(c, "search", err)
	}
	return xhttp.ListResponse(c, matches, int64(len(matches)))
}

func (h *StocksHandler) News(c echo.Context) error {
	req := &models.StockNewsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	articles := h.mapper.NewsForStock(c.Request().Context(), c.Param("symbol"),
		req.MinRelevance, req.Limit)
	return xhttp.ListResponse(c, articles, int64(len(articles)))
}

func (h *StocksHandler) Analysis(c echo.Context) error {
	req := &models.AnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	a, err := h.analyzer.Analyze(c.Request().Context(), c.Param("symbol"), req.Refresh)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return xhttp.NotFoundResponse(c, "unknown ticker")
		}
		h.logger.Error("analysis error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, a)
}

func (h *StocksHandler) ArticleStocks(c echo.Context) error {
	links := h.mapper.StocksInArticle(c.Request().Context(), c.Param("id"))
	return xhttp.ListResponse(c, links, int64(len(links)))
}

func (h *StocksHandler) Remap(c echo.Context) error {
	req := &models.RemapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	links := h.mapper.RecalculateScores(c.Request().Context(), c.Param("id"))
	return xhttp.ListResponse(c, links, int64(len(links)))
}

func (h *StocksHandler) MappingStats(c echo.Context) error {
	topN := xhttp.ParseIntDefault(c.QueryParam("top"), 10)
	return xhttp.SuccessResponse(c, h.mapper.Stats(c.Request().Context(), topN))
}

// providerError maps the adapter error taxonomy to HTTP statuses.
func (h *StocksHandler) providerError(c echo.Context, op string, err error) error {
	if datasource.IsRateLimit(err) {
		return xhttp.TooManyRequestsResponse(c, "data providers rate limited, retry later")
	}
	var unavailable *datasource.UnavailableError
	if errors.As(err, &unavailable) {
		h.logger.Error(op+" providers exhausted", xlogger.Error(err))
		return xhttp.ServiceUnavailableResponse(c, "no data source available")
	}
	var invalid *datasource.InvalidDataError
	if errors.As(err, &invalid) {
		h.logger.Error(op+" provider returned bad data", xlogger.Error(err))
		return xhttp.BadRequestResponse(c, "upstream returned unusable data")
	}
	h.logger.Error(op+" error", xlogger.Error(err))
	return xhttp.InternalServerErrorResponse(c)
}
