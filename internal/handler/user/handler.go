package user

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeveda/records-api/internal/handler"
	"github.com/codeveda/records-api/internal/middleware"
	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/service/user"
	"github.com/codeveda/records-api/internal/service/visit"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/httputil"
)

type Handler struct {
	service user.UserServicer
	visits  visit.VisitServicer
}

func NewHandler(service user.UserServicer, visits visit.VisitServicer) *Handler {
	return &Handler{service: service, visits: visits}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	users := r.Group("/users", authn)
	{
		users.GET("/search/simple", h.Search)
		users.GET("/patient/lookup", middleware.RequireDoctor(), h.LookupPatient)
		users.POST("/patient/visit", middleware.RequireDoctor(), middleware.NoStore(), h.ProvisionVisit)

		admin := users.Group("", middleware.RequireAdmin())
		admin.GET("", h.ListUsers)
		admin.GET("/stats/overview", h.Stats)
		admin.GET("/:id", h.GetUser)
		admin.PUT("/:id", h.UpdateUser)
		admin.DELETE("/:id", h.DeleteUser)
	}
}

func (h *Handler) ListUsers(c *gin.Context) {
	page := httputil.ParsePage(c, httputil.DefaultLimit)
	filter := model.UserFilter{
		Role:   model.Role(c.Query("role")),
		Search: c.Query("search"),
		Limit:  page.Limit,
		Offset: page.Offset(),
	}
	if v := c.Query("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			handler.Fail(c, apperrors.BadRequest("is_active must be true or false", err))
			return
		}
		filter.IsActive = &active
	}

	users, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithPagination(c, "Users retrieved successfully", users, page, total)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "user")
	if !ok {
		return
	}
	u, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "User retrieved successfully", u)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "user")
	if !ok {
		return
	}
	var req model.UserUpdate
	if !handler.BindJSON(c, &req) {
		return
	}

	u, err := h.service.Update(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "User updated successfully", u)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "user")
	if !ok {
		return
	}
	if err := h.service.Deactivate(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "User deactivated successfully", nil)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "User statistics retrieved successfully", stats)
}

func (h *Handler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := h.service.Search(c.Request.Context(), c.Query("q"), model.Role(c.Query("role")), limit)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Users found", users)
}

func (h *Handler) LookupPatient(c *gin.Context) {
	p, err := h.service.LookupPatient(c.Request.Context(), c.Query("email"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Patient found", p)
}

// ProvisionVisit records a visit for a patient found by email, creating the
// patient account when none exists.
func (h *Handler) ProvisionVisit(c *gin.Context) {
	var req model.ProvisionVisitRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	res, err := h.visits.Provision(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	message := "Visit recorded successfully"
	if res.PatientCreated {
		message = "Patient created and visit recorded successfully"
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":         message,
		"visit":           res.Visit,
		"patient_id":      res.PatientID,
		"patient_created": res.PatientCreated,
	})
}
