package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/pkg/auth"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/httputil"
)

const (
	ContextUserID  = "user_id"
	ContextUser    = "user"
	ContextClaims  = "claims"
	ContextTokenID = "token_id"
)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, *auth.Claims, error)
}

type AuthMiddleware struct {
	authn   Authenticator
	verbose bool
}

func NewAuthMiddleware(authn Authenticator, verbose bool) *AuthMiddleware {
	return &AuthMiddleware{authn: authn, verbose: verbose}
}

// Authenticate requires a valid bearer token and stores the caller in the
// context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized("Access token required", nil), m.verbose)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized("Invalid authorization format", nil), m.verbose)
			return
		}

		user, claims, err := m.authn.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, apperrors.FromDB(err), m.verbose)
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Set(ContextClaims, claims)
		c.Set(ContextTokenID, claims.TokenID())
		c.Next()
	}
}

// ActorFrom builds the actor for the request. Unauthenticated requests get
// an actor with only the client address.
func ActorFrom(c *gin.Context) model.Actor {
	actor := model.Actor{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if v, ok := c.Get(ContextUser); ok {
		if user, ok := v.(*model.User); ok {
			actor.UserID = user.ID
			actor.Email = user.Email
			actor.Role = user.Role
		}
	}
	return actor
}

// UserIDFrom returns the authenticated user's id.
func UserIDFrom(c *gin.Context) (uuid.UUID, bool) {
	id, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	uid, ok := id.(uuid.UUID)
	return uid, ok
}

// RequireRole lets through callers holding one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	required := strings.Join(names, " or ")

	return func(c *gin.Context) {
		actor := ActorFrom(c)
		if actor.UserID == uuid.Nil {
			httputil.RespondWithError(c, apperrors.Unauthorized("Authentication required", nil), false)
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c,
			apperrors.Forbidden(fmt.Sprintf("Required role: %s, but user has: %s", required, actor.Role)), false)
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireRole(model.RoleAdmin)
}

func RequireDoctor() gin.HandlerFunc {
	return RequireRole(model.RoleDoctor, model.RoleAdmin)
}

func RequireAuthenticated() gin.HandlerFunc {
	return RequireRole(model.RoleAdmin, model.RoleDoctor, model.RolePatient)
}
