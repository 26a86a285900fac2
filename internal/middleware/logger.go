package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger injects a request-scoped zerolog logger into the request
// context and logs one line per completed request. Place it after RequestID.
// Handlers retrieve the logger with zerolog.Ctx.
func RequestLogger(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			r := c.Request()

			lc := base.With().
				Str("method", r.Method).
				Str("path", r.URL.Path)
			if requestID := GetRequestID(r.Context()); requestID != "" {
				lc = lc.Str("request_id", requestID)
			}
			logger := lc.Logger()
			c.SetRequest(r.WithContext(logger.WithContext(r.Context())))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			evt := logger.Info()
			switch {
			case status >= 500:
				evt = logger.Error()
			case status >= 400:
				evt = logger.Warn()
			}
			evt.Int("status", status).
				Int64("bytes", c.Response().Size).
				Dur("latency", time.Since(start)).
				Msg("request completed")
			return nil
		}
	}
}
