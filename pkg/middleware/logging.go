package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggingConfig holds logging middleware configuration
type LoggingConfig struct {
	SkipPaths   []string
	SkipMethods []string
}

// DefaultLoggingConfig returns default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:   []string{"/health"},
		SkipMethods: []string{"OPTIONS", "HEAD"},
	}
}

// Logging logs one line per request
type Logging struct {
	config LoggingConfig
	logger *zap.SugaredLogger
}

// NewLogging creates a new logging middleware
func NewLogging(config LoggingConfig, logger *zap.SugaredLogger) *Logging {
	return &Logging{config: config, logger: logger}
}

// Middleware returns the gin logging middleware
func (l *Logging) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := GetRequestID(c)
		c.Header(HeaderRequestID, requestID)

		if l.skip(c) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"bytes_in", c.Request.ContentLength,
			"bytes_out", c.Writer.Size(),
			"client_ip", GetClientIP(c),
		}
		if owner := Owner(c); owner != "" {
			fields = append(fields, "owner", owner)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			l.logger.Errorw("request", fields...)
		case status >= 400:
			l.logger.Warnw("request", fields...)
		default:
			l.logger.Infow("request", fields...)
		}
	}
}

func (l *Logging) skip(c *gin.Context) bool {
	for _, m := range l.config.SkipMethods {
		if c.Request.Method == m {
			return true
		}
	}
	for _, p := range l.config.SkipPaths {
		if strings.HasPrefix(c.Request.URL.Path, p) {
			return true
		}
	}
	return false
}
