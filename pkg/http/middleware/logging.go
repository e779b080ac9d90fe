package middleware

import (
	"log"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs completed HTTP requests. Probe and scrape
// endpoints are skipped to keep the log readable.
func RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)

			if strings.HasPrefix(req.URL.Path, "/health") || req.URL.Path == "/metrics" {
				return err
			}

			log.Printf("[%s] %s %s - %d %dB (%s)",
				req.Method,
				req.RequestURI,
				c.RealIP(),
				res.Status,
				res.Size,
				time.Since(start),
			)

			return err
		}
	}
}
