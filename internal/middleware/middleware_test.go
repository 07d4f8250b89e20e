package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeveda/records-api/internal/config"
	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/pkg/auth"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func counterStores(t *testing.T) map[string]CounterStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return map[string]CounterStore{
		"memory": NewMemoryCounter(time.Minute),
		"redis":  NewRedisCounter(client),
	}
}

func TestCounterStores(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			n, left, err := store.Incr(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)
			assert.Equal(t, time.Minute, left)

			n, left, err = store.Incr(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.EqualValues(t, 2, n)
			assert.True(t, left > 0 && left <= time.Minute)

			require.NoError(t, store.Decr(ctx, "k"))
			n, _, err = store.Incr(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.EqualValues(t, 2, n)
		})
	}
}

func TestRateLimit(t *testing.T) {
	for name, store := range counterStores(t) {
		t.Run(name, func(t *testing.T) {
			r := gin.New()
			r.Use(RateLimit(store, RateLimitConfig{
				Name: "general", Max: 2, Window: 15 * time.Minute, Skip: SkipPaths("/api/health"),
			}, metrics.NewNop()))
			r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
			r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			for i := 0; i < 2; i++ {
				assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)
			}
			w := perform(r, http.MethodGet, "/x", nil)
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
			assert.NotEmpty(t, w.Header().Get("Retry-After"))

			body := decode(t, w)
			assert.Equal(t, "Too many requests", body["error"])
			assert.Greater(t, body["retryAfter"], float64(0))

			assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api/health", nil).Code)
		})
	}
}

func TestRateLimit_SkipSuccessful(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(NewMemoryCounter(time.Minute), RateLimitConfig{
		Name: "auth", Max: 1, Window: time.Minute, SkipSuccessful: true,
	}, metrics.NewNop()))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ok", nil).Code)
	}
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/fail", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, perform(r, http.MethodGet, "/fail", nil).Code)
}

func TestRateLimit_SkipSuccessfulCountsHandlerErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(false), RateLimit(NewMemoryCounter(time.Minute), RateLimitConfig{
		Name: "auth", Max: 2, Window: time.Minute, SkipSuccessful: true,
	}, metrics.NewNop()))
	r.POST("/login", func(c *gin.Context) {
		_ = c.Error(apperrors.Unauthorized("Invalid credentials", nil))
		c.Abort()
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodPost, "/login", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, perform(r, http.MethodPost, "/login", nil).Code)
}

type recordedAudits struct {
	entries []*model.AuditLog
}

func (r *recordedAudits) Record(_ context.Context, entry *model.AuditLog) {
	r.entries = append(r.entries, entry)
}

func (r *recordedAudits) Committed(...*model.AuditLog) {}

func TestAuditRead(t *testing.T) {
	rec := &recordedAudits{}
	r := gin.New()
	r.Use(ErrorHandler(false))
	read := AuditRead(rec, model.AuditResourceVisit)
	r.GET("/visits/:id", read, func(c *gin.Context) {
		switch c.Param("id") {
		case "missing":
			_ = c.Error(apperrors.NotFound("Visit", nil))
			c.Abort()
		case "forbidden":
			_ = c.Error(apperrors.Forbidden("Access denied"))
			c.Abort()
		default:
			c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
		}
	})

	assert.Equal(t, http.StatusNotFound, perform(r, http.MethodGet, "/visits/missing", nil).Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/visits/forbidden", nil).Code)
	assert.Empty(t, rec.entries)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/visits/v1", nil).Code)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, model.AuditActionRead, rec.entries[0].Action)
	require.NotNil(t, rec.entries[0].ResourceID)
	assert.Equal(t, "v1", *rec.entries[0].ResourceID)
}

func TestGlobalRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(GlobalRateLimit(0.001, 1, metrics.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, perform(r, http.MethodGet, "/x", nil).Code)
}

type stubAuthenticator struct {
	users map[string]*model.User
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*model.User, *auth.Claims, error) {
	u, ok := s.users[token]
	if !ok {
		return nil, nil, apperrors.Unauthorized("Invalid or expired token", nil)
	}
	claims := &auth.Claims{UserID: u.ID, Email: u.Email, Role: string(u.Role)}
	claims.ID = "tid-" + token
	return u, claims, nil
}

func authRouter() *gin.Engine {
	authn := stubAuthenticator{users: map[string]*model.User{
		"doctor":  {ID: uuid.New(), Email: "d@example.com", Role: model.RoleDoctor, IsActive: true},
		"patient": {ID: uuid.New(), Email: "p@example.com", Role: model.RolePatient, IsActive: true},
	}}
	m := NewAuthMiddleware(authn, false)

	r := gin.New()
	api := r.Group("/", m.Authenticate())
	api.GET("/me", func(c *gin.Context) {
		actor := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"role": actor.Role, "token": c.GetString(ContextTokenID)})
	})
	api.GET("/doctors", RequireDoctor(), func(c *gin.Context) { c.Status(http.StatusOK) })
	api.GET("/admins", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuthenticate(t *testing.T) {
	r := authRouter()

	w := perform(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Access token required", decode(t, w)["message"])

	w = perform(r, http.MethodGet, "/me", map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, http.MethodGet, "/me", map[string]string{"Authorization": "Bearer doctor"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "doctor", body["role"])
	assert.Equal(t, "tid-doctor", body["token"])
}

func TestRequireRole(t *testing.T) {
	r := authRouter()

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/doctors", map[string]string{"Authorization": "Bearer doctor"}).Code)

	w := perform(r, http.MethodGet, "/admins", map[string]string{"Authorization": "Bearer doctor"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Required role: admin, but user has: doctor", decode(t, w)["message"])

	w = perform(r, http.MethodGet, "/doctors", map[string]string{"Authorization": "Bearer patient"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Required role: doctor or admin, but user has: patient", decode(t, w)["message"])
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler(false))
	r.GET("/missing", func(c *gin.Context) { _ = c.Error(apperrors.NotFound("Visit", nil)) })
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("secret internals")) })

	w := perform(r, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Visit not found", body["message"])
	assert.Equal(t, w.Header().Get(HeaderXRequestID), body["request_id"])

	w = perform(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret internals")
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := perform(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["error"])
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := perform(r, http.MethodGet, "/", map[string]string{HeaderXRequestID: "abc-123"})
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))

	w = perform(r, http.MethodGet, "/", nil)
	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodOptions, "/", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	w = perform(r, http.MethodGet, "/", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"0123456789"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecurityAndCacheHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(DefaultSecurityConfig()))
	r.GET("/phi", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/codes", Cache(CacheConfig{MaxAge: 300}), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/phi", nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "includeSubDomains")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = perform(r, http.MethodGet, "/codes", nil)
	assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))
}
