package code

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeveda/records-api/internal/handler"
	"github.com/codeveda/records-api/internal/middleware"
	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/service/code"
	"github.com/codeveda/records-api/pkg/httputil"
)

type Handler struct {
	svc code.CodeServicer
}

func NewHandler(svc code.CodeServicer) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, authn gin.HandlerFunc) {
	g := r.Group("/codes", authn)
	{
		lookups := g.Group("", middleware.Cache(middleware.CacheConfig{MaxAge: 300, Private: true}))
		lookups.GET("/categories", h.Categories)
		lookups.GET("/ayush-systems", h.AyushSystems)
		lookups.GET("/namaste/:code", h.GetByNamasteCode)

		g.GET("/search", h.Search)
		g.GET("", h.List)

		admin := g.Group("", middleware.RequireAdmin())
		admin.POST("", h.Create)
		admin.PUT("/:id", h.Update)
		admin.DELETE("/:id", h.Delete)
		admin.GET("/stats/overview", h.Stats)
	}
}

func (h *Handler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	q := model.CodeSearch{
		Query:       c.Query("q"),
		Category:    c.Query("category"),
		AyushSystem: c.Query("ayush_system"),
		Limit:       limit,
	}

	results, err := h.svc.Search(c.Request.Context(), middleware.ActorFrom(c), q)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Search completed successfully",
		"results": results,
		"count":   len(results),
		"query":   q,
	})
}

func (h *Handler) List(c *gin.Context) {
	page := httputil.ParsePage(c, httputil.DefaultLimit)
	filter := model.CodeFilter{
		Category:    c.Query("category"),
		AyushSystem: c.Query("ayush_system"),
		Limit:       page.Limit,
		Offset:      page.Offset(),
	}

	mappings, total, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithPagination(c, "Code mappings retrieved successfully", mappings, page, total)
}

func (h *Handler) GetByNamasteCode(c *gin.Context) {
	m, err := h.svc.GetByNamasteCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Code mapping retrieved successfully", m)
}

func (h *Handler) Categories(c *gin.Context) {
	cats, err := h.svc.Categories(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Categories retrieved successfully", cats)
}

func (h *Handler) AyushSystems(c *gin.Context) {
	systems, err := h.svc.AyushSystems(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "AYUSH systems retrieved successfully", systems)
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateCodeRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	m, err := h.svc.Create(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, "Code mapping created successfully", m)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "code mapping")
	if !ok {
		return
	}
	var req model.CodeMappingUpdate
	if !handler.BindJSON(c, &req) {
		return
	}

	m, err := h.svc.Update(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Code mapping updated successfully", m)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "code mapping")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Code mapping deleted successfully", nil)
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, "Code mapping statistics retrieved successfully", stats)
}
