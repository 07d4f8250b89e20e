package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/service/audit"
)

// AuditRead records a read audit entry after a successful GET of a
// resource identified by the :id path parameter.
func AuditRead(recorder audit.Recorder, resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet || requestFailed(c) || c.Writer.Status() != http.StatusOK {
			return
		}
		actor := ActorFrom(c)
		entry := model.NewAuditLog(actor, model.AuditActionRead, resourceType, c.Param("id"), nil, map[string]interface{}{
			"path": c.FullPath(),
		})
		recorder.Record(c.Request.Context(), entry)
	}
}
