package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mallardmetrics/mallard/internal/apierr"
)

// TimeoutConfig holds configuration for request timeouts.
type TimeoutConfig struct {
	Timeout       time.Duration
	ExcludedPaths []string
}

// DefaultTimeoutConfig applies a 30-second deadline to every request.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{Timeout: 30 * time.Second}
}

// Timeout enforces a deadline on the request context so a slow
// aggregation or storage operation can't hold a handler (and its
// goroutine) open indefinitely.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	excluded := make(map[string]bool, len(config.ExcludedPaths))
	for _, path := range config.ExcludedPaths {
		excluded[path] = true
	}

	return func(c *gin.Context) {
		if excluded[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
			return
		case <-ctx.Done():
			(&apierr.AppError{
				Code:       apierr.CodeInternal,
				Message:    "request timed out",
				StatusCode: http.StatusRequestTimeout,
			}).Abort(c)
			return
		}
	}
}

// TimeoutWithDuration builds a Timeout middleware for a single duration.
func TimeoutWithDuration(timeout time.Duration) gin.HandlerFunc {
	config := DefaultTimeoutConfig()
	config.Timeout = timeout
	return Timeout(config)
}
