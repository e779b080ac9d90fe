package middleware

import (
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"Kessan/internal/domain/repository"
	apphttp "Kessan/pkg/http"
	applogger "Kessan/pkg/logger"
)

// Heuristics for hostile input. Conservative on purpose: ticker symbols,
// Japanese text and ISO dates must all pass untouched.
var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(\bunion\b.+\bselect\b|\bselect\b.+\bfrom\b|\bdrop\s+table\b|\binsert\s+into\b|\bdelete\s+from\b|--\s|;\s*(drop|delete|update)\b|'\s*(or|and)\s+'?\d)`)
	xssPattern          = regexp.MustCompile(`(?i)(<\s*script|javascript\s*:|\bon(error|load|click|mouseover)\s*=|<\s*iframe|<\s*img[^>]+src)`)
	pathTraversalPattern = regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f)`)
	cmdInjectionPattern  = regexp.MustCompile("(?i)(;\\s*(rm|cat|wget|curl|sh|bash)\\b|\\|\\s*(rm|cat|wget|curl|sh|bash)\\b|`[^`]*`|\\$\\((?:[^)]*)\\))")
)

// SecurityFilter rejects requests whose inputs match injection
// heuristics before they reach business logic.
type SecurityFilter struct {
	logger  *applogger.Logger
	metrics repository.Metrics
}

func NewSecurityFilter(lgr *applogger.Logger, metrics repository.Metrics) *SecurityFilter {
	return &SecurityFilter{logger: lgr, metrics: metrics}
}

func (f *SecurityFilter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			if kind := classifyHostile(req.URL.Path); kind != "" {
				return f.reject(c, kind, "path")
			}
			for name, values := range c.QueryParams() {
				for _, v := range values {
					if kind := classifyHostile(v); kind != "" {
						return f.reject(c, kind, "query:"+name)
					}
				}
			}
			for _, name := range c.ParamNames() {
				if kind := classifyHostile(c.Param(name)); kind != "" {
					return f.reject(c, kind, "param:"+name)
				}
			}
			return next(c)
		}
	}
}

func (f *SecurityFilter) reject(c echo.Context, kind, location string) error {
	f.logger.Warn("hostile input rejected",
		applogger.String("kind", kind),
		applogger.String("location", location),
		applogger.String("remote_ip", c.RealIP()),
		applogger.String("path", c.Request().URL.Path))
	f.metrics.RecordError("security_" + kind)
	return apphttp.BadRequestResponse(c, "request rejected")
}

// classifyHostile names the first matching attack family, or "".
func classifyHostile(input string) string {
	if input == "" {
		return ""
	}
	lowered := strings.ToLower(input)
	switch {
	case pathTraversalPattern.MatchString(lowered):
		return "path_traversal"
	case sqlInjectionPattern.MatchString(input):
		return "sql_injection"
	case xssPattern.MatchString(input):
		return "xss"
	case cmdInjectionPattern.MatchString(input):
		return "command_injection"
	}
	return ""
}
