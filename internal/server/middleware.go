package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/contentxtractor/internal/extract"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const loggerKey = "logger"

// RequestID reuses a well-formed incoming id or mints a new one, echoes it,
// and stores a request-scoped logger on the context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		logger := log.With().Str("request_id", id).Logger()
		c.Set(loggerKey, logger)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Next()
	}
}

// RequestLogger logs one line per request after it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l := loggerFrom(c)
		ev := l.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = l.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// ErrorHandler turns a panic into the same 502 body an unexpected extraction
// failure gets.
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		l := loggerFrom(c)
		l.Error().Interface("panic", recovered).Msg("handler panicked")
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "extraction failed",
			"kind":  string(extract.KindUnexpected),
		})
		c.Abort()
	})
}

func loggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return &l
		}
	}
	return &log.Logger
}
