package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const corsAllowMethods = "GET, POST, OPTIONS"

// header field names are RFC 7230 tokens
func notTokenChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("!#$%&'*+-.^_`|~", r):
		return false
	}
	return true
}

// sanitizeRequestHeaders keeps the well formed names of an
// Access-Control-Request-Headers value so it can be echoed back.
func sanitizeRequestHeaders(value string) string {
	names := make([]string, 0, 4)
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name == "" || strings.IndexFunc(name, notTokenChar) >= 0 {
			continue
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// corsMiddleware lets browser pages emit and subscribe from any origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Origin") == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", "*")
		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		if headers := sanitizeRequestHeaders(c.GetHeader("Access-Control-Request-Headers")); headers != "" {
			c.Header("Access-Control-Allow-Headers", headers)
		}
		c.Header("Access-Control-Max-Age", "86400")
		c.AbortWithStatus(http.StatusNoContent)
	}
}
