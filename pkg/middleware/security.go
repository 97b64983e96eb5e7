package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// apiCSP forbids everything; the server never renders HTML
const apiCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders hardens JSON responses. Downloads keep their own caching
// (ETag, Last-Modified) so only private caching is allowed on them.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", apiCSP)
		h.Set("Referrer-Policy", "no-referrer")
		if isDownload(c.Request.URL.Path) {
			h.Set("Cache-Control", "private, no-cache")
		} else {
			h.Set("Cache-Control", "no-store")
		}
		c.Next()
	}
}

func isDownload(path string) bool {
	return strings.HasPrefix(path, "/api/files/") && strings.HasSuffix(path, "/download")
}
