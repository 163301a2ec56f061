package middleware

import "github.com/gin-gonic/gin"

// NoStore marks every response uncacheable. Intake answers are health data and must
// not linger in shared caches.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}
