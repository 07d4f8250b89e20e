package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeveda/records-api/pkg/httputil"
)

// Timeout bounds the request context. Handlers and the database calls
// below them stop at the deadline; if nothing was written by then the
// client gets a 503.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, httputil.ErrorBody{
				Error:     "Service unavailable",
				Message:   "Request timeout",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Path:      c.Request.URL.Path,
				RequestID: c.GetString(ContextRequestID),
			})
		}
	}
}
