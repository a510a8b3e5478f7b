package httpapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/mto-simulator/internal/logging"
)

const (
	headerRequestID = "X-Request-Id"
	headerSessionID = "X-Session-Id"
)

// requestLogger attaches request and session ids plus a scoped logger to the
// request context and logs one line per request.
func requestLogger(base logging.Logger, sessionID string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()
			if id := req.Header.Get(headerRequestID); id != "" {
				ctx = logging.ContextWithRequestID(ctx, id)
			}
			ctx = logging.ContextWithSessionID(ctx, sessionID)
			ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
				logging.String("method", req.Method),
				logging.String("path", req.URL.Path),
			))
			ctx = logging.ContextWithLogger(ctx, reqLog)
			c.SetRequest(req.WithContext(ctx))

			c.Response().Header().Set(headerRequestID, logging.RequestIDFromContext(ctx))
			c.Response().Header().Set(headerSessionID, sessionID)

			start := time.Now()
			err := next(c)
			reqLog.Debug(ctx, "http request",
				logging.Int("status", c.Response().Status),
				logging.Duration("took", time.Since(start)),
			)
			return err
		}
	}
}

// actionLimiter throttles player actions per client IP.
func actionLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
	})
}

func loggerFrom(c echo.Context, fallback logging.Logger) logging.Logger {
	if l := logging.LoggerFromContext(c.Request().Context()); l != nil {
		return l
	}
	return fallback
}
