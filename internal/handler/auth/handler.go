package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeveda/records-api/internal/handler"
	"github.com/codeveda/records-api/internal/middleware"
	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/service/auth"
	apperrors "github.com/codeveda/records-api/pkg/errors"
)

type Handler struct {
	svc auth.AuthServicer
}

func NewHandler(svc auth.AuthServicer) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /auth. limiter guards every route; authn guards the
// session routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, limiter, authn gin.HandlerFunc) {
	g := r.Group("/auth", limiter)
	{
		g.POST("/register", h.Register)
		g.POST("/login", h.Login)
		g.POST("/refresh", h.Refresh)
		g.POST("/logout", authn, h.Logout)
		g.GET("/me", authn, h.Me)
		g.PUT("/me", authn, h.UpdateMe)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	user, err := h.svc.Register(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	res, err := h.svc.Login(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    res.User,
		"session": res.Session,
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, apperrors.BadRequest("Refresh token required", err))
		return
	}

	sess, err := h.svc.Refresh(c.Request.Context(), middleware.ActorFrom(c), req.RefreshToken)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Token refreshed successfully",
		"session": sess,
	})
}

// Logout revokes the access token's session, and the refresh token's when
// the client sends it.
func (h *Handler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = c.ShouldBindJSON(&req)

	err := h.svc.Logout(c.Request.Context(), middleware.ActorFrom(c), c.GetString(middleware.ContextTokenID), req.RefreshToken)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

func (h *Handler) Me(c *gin.Context) {
	userID, _ := middleware.UserIDFrom(c)
	user, err := h.svc.Me(c.Request.Context(), userID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) UpdateMe(c *gin.Context) {
	var req model.ProfileUpdate
	if !handler.BindJSON(c, &req) {
		return
	}

	user, err := h.svc.UpdateProfile(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    user,
	})
}
