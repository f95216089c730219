package middleware

import (
	"time"

	applogger "ContagionRadar/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// OutcomeKey is the context key the response envelope stores its logical
// status under. The transport status of an enveloped reply is always 200.
const OutcomeKey = "outcome"

const requestIDKey = "request_id"

// Outcome is the logical status of the reply: the envelope status when one
// was written, the transport status otherwise.
func Outcome(c echo.Context) int {
	if s, ok := c.Get(OutcomeKey).(int); ok {
		return s
	}
	return c.Response().Status
}

// RequestID echoes X-Request-ID or assigns a new one.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(requestIDKey, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

// RequestLogging logs each request by outcome: debug for success, warn for
// 4xx and error for 5xx.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := Outcome(c)
			id, _ := c.Get(requestIDKey).(string)
			fields := []applogger.Field{
				applogger.String("request_id", id),
				applogger.String("method", c.Request().Method),
				applogger.String("uri", c.Request().RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", status),
				applogger.Duration("latency", time.Since(start)),
			}
			switch {
			case status >= 500:
				l.Error("http request", append(fields, applogger.Error(err))...)
			case status >= 400:
				l.Warn("http request", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
