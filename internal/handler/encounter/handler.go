package encounter

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeveda/records-api/internal/handler"
	"github.com/codeveda/records-api/internal/middleware"
	"github.com/codeveda/records-api/internal/service/encounter"
	apperrors "github.com/codeveda/records-api/pkg/errors"
)

type Handler struct {
	svc encounter.EncounterServicer
}

func NewHandler(svc encounter.EncounterServicer) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	r.POST("/uploadEncounter", authn, middleware.NoStore(), h.Upload)
}

func (h *Handler) Upload(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
			return
		}
		handler.Fail(c, apperrors.BadRequest("Failed to read request body", err))
		return
	}
	if len(body) == 0 {
		handler.Fail(c, apperrors.BadRequest("Request body is required", nil))
		return
	}

	receipt, err := h.svc.Upload(c.Request.Context(), middleware.ActorFrom(c), body)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Encounter bundle received",
		"receiptId": receipt.ID,
	})
}
