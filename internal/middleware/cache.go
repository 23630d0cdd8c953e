package middleware

import (
	"github.com/gin-gonic/gin"
)

// CacheControl sets the Cache-Control header. Session payloads use
// "no-store" so shared caches never keep a paper or a result.
func CacheControl(value string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
	}
}
