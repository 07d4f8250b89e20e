package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/httputil"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Details are only exposed when verbose is set.
func ErrorHandler(verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := apperrors.FromDB(c.Errors.Last().Err)
		appErr, _ := apperrors.As(err)
		if appErr.StatusCode() >= 500 {
			log.Error().
				Err(appErr.Err).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		httputil.RespondWithError(c, err, verbose)
	}
}

// requestFailed reports whether the chain ended in an error. Errors passed to
// c.Error are only rendered by ErrorHandler, so the status alone can still
// read 200 inside a route's middleware.
func requestFailed(c *gin.Context) bool {
	return len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest
}
