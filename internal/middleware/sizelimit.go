package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mallardmetrics/mallard/internal/apierr"
	"github.com/mallardmetrics/mallard/internal/validate"
)

// MaxRequestBodySize is a generous backstop for any endpoint that
// doesn't have its own tighter cap (everything except /api/event).
const MaxRequestBodySize int64 = 10 * 1024 * 1024

// RequestSizeLimiter rejects a request whose declared Content-Length
// is at or above maxSize with a 413, and wraps the body in a
// MaxBytesReader so a lying Content-Length can't get around it either.
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			c.Next()
			return
		}

		if c.Request.ContentLength >= maxSize {
			apierr.PayloadTooLarge("request body exceeds the maximum allowed size").Abort(c)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// EventBodyLimiter enforces spec's 64 KB cap on POST /api/event bodies.
func EventBodyLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(validate.MaxEventBodyBytes)
}

// DefaultSizeLimiter applies the generous backstop cap to every other route.
func DefaultSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxRequestBodySize)
}
