package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context keys set by the middleware chain
const (
	ContextKeyOwner     = "owner"
	ContextKeyAdmin     = "admin"
	ContextKeyRequestID = "request_id"

	HeaderRequestID = "X-Request-ID"
)

// Owner returns the authenticated owner id, or "" when the request is anonymous
func Owner(c *gin.Context) string {
	return c.GetString(ContextKeyOwner)
}

// IsAdmin reports whether the authenticated token carries the admin claim
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextKeyAdmin)
}

// GetClientIP returns the client IP address, honoring proxy headers
func GetClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

// GetRequestID returns the request id, taking it from the header when the
// caller supplied one and generating a new one otherwise
func GetRequestID(c *gin.Context) string {
	if id := c.GetString(ContextKeyRequestID); id != "" {
		return id
	}
	id := c.GetHeader(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(ContextKeyRequestID, id)
	return id
}

// Recovery converts panics into a 500 response and logs them
func Recovery(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"request_id", GetRequestID(c),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
					"code":  "internal_error",
				})
			}
		}()
		c.Next()
	}
}
