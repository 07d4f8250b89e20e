package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/handler"
	"github.com/codeveda/records-api/internal/middleware"
	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/service/audit"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/httputil"
)

const defaultLogLimit = 50

type Handler struct {
	service audit.AuditServicer
	now     func() time.Time
}

func NewHandler(service audit.AuditServicer) *Handler {
	return &Handler{service: service, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	g := r.Group("/audit", authn, middleware.RequireAdmin(), middleware.NoStore())
	{
		g.GET("/logs", h.ListLogs)
		g.GET("/logs/:id/fhir", h.GetLogFHIR)
		g.GET("", h.ListLegacy)
		g.GET("/stats", h.Stats)
		g.GET("/users/:user_id/activity", h.UserActivity)
	}
}

type logFilters struct {
	UserID       string `json:"user_id,omitempty"`
	Action       string `json:"action,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
	Search       string `json:"search,omitempty"`
	DateRange    string `json:"dateRange"`
}

func parseUserID(c *gin.Context, value string) (*uuid.UUID, bool) {
	if value == "" {
		return nil, true
	}
	id, err := uuid.Parse(value)
	if err != nil {
		handler.Fail(c, apperrors.BadRequest("Invalid user ID format", err))
		return nil, false
	}
	return &id, true
}

// ListLogs backs the log viewer: preset date ranges and free text search.
func (h *Handler) ListLogs(c *gin.Context) {
	page := httputil.ParsePage(c, defaultLogLimit)
	filters := logFilters{
		UserID:       c.Query("user_id"),
		Action:       c.Query("action"),
		ResourceType: c.Query("resourceType"),
		Search:       strings.TrimSpace(c.Query("search")),
		DateRange:    c.DefaultQuery("dateRange", string(model.AuditRangeWeek)),
	}
	userID, ok := parseUserID(c, filters.UserID)
	if !ok {
		return
	}

	filter := model.AuditFilter{
		UserID:       userID,
		Action:       filters.Action,
		ResourceType: filters.ResourceType,
		Search:       filters.Search,
		From:         model.AuditDateRange(filters.DateRange).Since(h.now().UTC()),
		Limit:        page.Limit,
		Offset:       page.Offset(),
	}
	logs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, httputil.Response{
		Message:    "Audit logs retrieved successfully",
		Data:       logs,
		Pagination: httputil.NewPagination(page, total),
		Filters:    filters,
	})
}

// ListLegacy filters by explicit start_date and end_date.
func (h *Handler) ListLegacy(c *gin.Context) {
	page := httputil.ParsePage(c, defaultLogLimit)
	userID, ok := parseUserID(c, c.Query("user_id"))
	if !ok {
		return
	}
	period, ok := handler.ParseDateRange(c)
	if !ok {
		return
	}

	filter := model.AuditFilter{
		UserID:       userID,
		Action:       c.Query("action"),
		ResourceType: c.Query("resource_type"),
		Limit:        page.Limit,
		Offset:       page.Offset(),
	}
	if !period.From.IsZero() {
		filter.From = &period.From
	}
	if !period.To.IsZero() {
		filter.To = &period.To
	}

	logs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithPagination(c, "Audit logs retrieved successfully", logs, page, total)
}

func (h *Handler) Stats(c *gin.Context) {
	period, ok := handler.ParseDateRange(c)
	if !ok {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), period)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Audit statistics retrieved successfully", stats)
}

func (h *Handler) UserActivity(c *gin.Context) {
	userID, ok := handler.ParseID(c, "user_id", "user")
	if !ok {
		return
	}
	page := httputil.ParsePage(c, defaultLogLimit)

	logs, total, err := h.service.List(c.Request.Context(), model.AuditFilter{
		UserID: &userID,
		Limit:  page.Limit,
		Offset: page.Offset(),
	})
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithPagination(c, "User activity retrieved successfully", logs, page, total)
}

func (h *Handler) GetLogFHIR(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "audit log")
	if !ok {
		return
	}
	entry, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry.ToFHIR())
}
