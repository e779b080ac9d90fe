package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	apphttp "Kessan/pkg/http"
)

const (
	// APIKeyHeader carries the per-client key issued with the plan.
	APIKeyHeader = "X-API-Key"

	// CtxAPIKey and CtxTier are set on the echo context after auth.
	CtxAPIKey = "auth_api_key"
	CtxTier   = "auth_tier"

	defaultTier = "free"
)

// SessionClaims is the JWT payload issued to dashboard sessions.
type SessionClaims struct {
	Subject string `json:"sub_name"`
	Tier    string `json:"tier"`
	jwt.RegisteredClaims
}

// Auth authenticates requests by API key or bearer JWT and resolves the
// caller's plan tier.
type Auth struct {
	apiKeys   map[string]string // key -> tier
	jwtSecret []byte
}

func NewAuth(apiKeys map[string]string, jwtSecret string) *Auth {
	return &Auth{apiKeys: apiKeys, jwtSecret: []byte(jwtSecret)}
}

// Middleware rejects requests without a valid API key or bearer token.
func (a *Auth) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key := c.Request().Header.Get(APIKeyHeader); key != "" {
				tier, ok := a.apiKeys[key]
				if !ok {
					return apphttp.UnauthorizedResponse(c, "invalid API key")
				}
				c.Set(CtxAPIKey, key)
				c.Set(CtxTier, tier)
				return next(c)
			}

			if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
				claims, err := a.parseToken(strings.TrimPrefix(auth, "Bearer "))
				if err != nil {
					return apphttp.UnauthorizedResponse(c, "invalid token")
				}
				tier := claims.Tier
				if tier == "" {
					tier = defaultTier
				}
				c.Set(CtxAPIKey, "jwt:"+claims.Subject)
				c.Set(CtxTier, tier)
				return next(c)
			}

			return apphttp.UnauthorizedResponse(c, "missing credentials")
		}
	}
}

func (a *Auth) parseToken(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token invalid")
	}
	return claims, nil
}

// IssueToken signs a session token for dashboard logins.
func (a *Auth) IssueToken(subject, tier string, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		Subject: subject,
		Tier:    tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// TierOf reads the plan tier resolved during auth.
func TierOf(c echo.Context) string {
	if tier, ok := c.Get(CtxTier).(string); ok && tier != "" {
		return tier
	}
	return defaultTier
}

// KeyOf reads the caller identity resolved during auth.
func KeyOf(c echo.Context) string {
	key, _ := c.Get(CtxAPIKey).(string)
	return key
}
