package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// requestLogger logs requests through zerolog. Unless logAll is set only
// responses with status >= 400 are logged.
func requestLogger(logger zerolog.Logger, logAll bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		if !logAll && status < 400 {
			return
		}

		ev := logger.Info()
		switch {
		case status >= 500:
			ev = logger.Error()
		case status >= 400:
			ev = logger.Warn()
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			ev = ev.Str("error", msg)
		}
		ev.Int("status", status).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("client", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
