package middleware

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"Kessan/internal/domain/repository"
	"Kessan/pkg/cache"
	apphttp "Kessan/pkg/http"
	applogger "Kessan/pkg/logger"
)

const quotaKeyPrefix = "kessan:quota:"

// TierLimit caps requests per window for one plan tier.
type TierLimit struct {
	Requests int
}

// Quota enforces fixed-window request budgets per API key, counted in
// Redis so every instance shares the same window.
type Quota struct {
	logger  *applogger.Logger
	metrics repository.Metrics
	cache   cache.Service
	window  time.Duration
	tiers   map[string]TierLimit
}

func NewQuota(
	lgr *applogger.Logger,
	metrics repository.Metrics,
	cacheSvc cache.Service,
	window time.Duration,
	tiers map[string]TierLimit,
) *Quota {
	if window <= 0 {
		window = time.Minute
	}
	return &Quota{
		logger:  lgr,
		metrics: metrics,
		cache:   cacheSvc,
		window:  window,
		tiers:   tiers,
	}
}

// Middleware counts the request against the caller's window and rejects
// with 429 once the tier budget is spent. Counter failures fail open.
func (q *Quota) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := KeyOf(c)
			if key == "" {
				return next(c)
			}
			limit, ok := q.tiers[TierOf(c)]
			if !ok || limit.Requests <= 0 {
				return next(c)
			}

			ctx := c.Request().Context()
			windowStart := time.Now().Truncate(q.window).Unix()
			counterKey := fmt.Sprintf("%s%s:%d", quotaKeyPrefix, key, windowStart)

			count, err := q.cache.Increment(ctx, counterKey)
			if err != nil {
				q.logger.Warn("quota counter unavailable",
					applogger.String("key", key),
					applogger.Error(err))
				q.metrics.RecordError("quota_counter")
				return next(c)
			}
			if count == 1 {
				if _, err := q.cache.Expire(ctx, counterKey, q.window); err != nil {
					q.logger.Debug("quota expire failed", applogger.Error(err))
				}
			}

			remaining := int64(limit.Requests) - count
			if remaining < 0 {
				remaining = 0
			}
			resetAt := time.Unix(windowStart, 0).Add(q.window)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit.Requests))
			h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))

			if count > int64(limit.Requests) {
				h.Set("Retry-After", fmt.Sprintf("%d", int(time.Until(resetAt).Seconds())+1))
				return apphttp.TooManyRequestsResponse(c, "quota exceeded for tier "+TierOf(c))
			}
			return next(c)
		}
	}
}
