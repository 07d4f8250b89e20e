package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeveda/records-api/internal/config"
	auditHandler "github.com/codeveda/records-api/internal/handler/audit"
	authHandler "github.com/codeveda/records-api/internal/handler/auth"
	codeHandler "github.com/codeveda/records-api/internal/handler/code"
	encounterHandler "github.com/codeveda/records-api/internal/handler/encounter"
	"github.com/codeveda/records-api/internal/handler/health"
	patientHandler "github.com/codeveda/records-api/internal/handler/patient"
	"github.com/codeveda/records-api/internal/handler/prometheus"
	userHandler "github.com/codeveda/records-api/internal/handler/user"
	"github.com/codeveda/records-api/internal/middleware"
	"github.com/codeveda/records-api/pkg/metrics"
)

const healthPath = "/api/health"

// Handlers groups the route owners mounted under /api.
type Handlers struct {
	Auth      *authHandler.Handler
	Users     *userHandler.Handler
	Codes     *codeHandler.Handler
	Patients  *patientHandler.Handler
	Audit     *auditHandler.Handler
	Encounter *encounterHandler.Handler
	Health    *health.Handler
	// Prometheus is optional; nil disables the metrics endpoint.
	Prometheus *prometheus.Handler
}

type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	auth     *middleware.AuthMiddleware
	counters middleware.CounterStore
	metrics  *metrics.Metrics
	handlers Handlers
}

func NewRouter(cfg *config.Config, auth *middleware.AuthMiddleware, counters middleware.CounterStore,
	m *metrics.Metrics, handlers Handlers) *Router {
	engine := gin.New()
	engine.HandleMethodNotAllowed = false

	return &Router{
		engine:   engine,
		cfg:      cfg,
		auth:     auth,
		counters: counters,
		metrics:  m,
		handlers: handlers,
	}
}

// Setup installs the middleware chain and mounts every route.
func (r *Router) Setup() *gin.Engine {
	verbose := !r.cfg.IsProduction()

	r.engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(r.metrics),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(r.cfg.CORS),
		middleware.Compress(middleware.DefaultCompressConfig()),
		middleware.SizeLimit(r.cfg.Server.BodyLimit),
	)
	if r.cfg.Server.RequestTimeout > 0 {
		r.engine.Use(middleware.Timeout(r.cfg.Server.RequestTimeout))
	}
	r.engine.Use(middleware.ErrorHandler(verbose))

	r.handlers.Health.RegisterRoutes(r.engine)
	if r.handlers.Prometheus != nil && r.cfg.Metrics.Enabled {
		r.engine.GET(r.cfg.Metrics.Path, r.handlers.Prometheus.Handler())
	}

	api := r.engine.Group("/api")
	api.GET("/health", r.handlers.Health.Health)

	authn := r.auth.Authenticate()
	authLimiter := r.limiters(api)

	r.handlers.Auth.RegisterRoutes(api, authLimiter, authn)
	r.handlers.Users.RegisterRoutes(api, authn)
	r.handlers.Codes.RegisterRoutes(api, authn)
	r.handlers.Patients.RegisterRoutes(api, authn)
	r.handlers.Audit.RegisterRoutes(api, authn)
	r.handlers.Encounter.RegisterRoutes(api, authn)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "Route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	return r.engine
}

// limiters installs the process-wide and per-IP limiters on api and returns
// the limiter reserved for /api/auth.
func (r *Router) limiters(api *gin.RouterGroup) gin.HandlerFunc {
	rl := r.cfg.RateLimit
	if !rl.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	if rl.GlobalRPS > 0 {
		api.Use(middleware.GlobalRateLimit(rl.GlobalRPS, rl.GlobalBurst, r.metrics))
	}
	api.Use(middleware.RateLimit(r.counters, middleware.RateLimitConfig{
		Name:   "general",
		Max:    rl.GeneralMax,
		Window: rl.Window,
		Skip:   middleware.SkipPaths(healthPath),
	}, r.metrics))
	api.Use(middleware.RateLimit(r.counters, middleware.RateLimitConfig{
		Name:    "strict",
		Max:     rl.StrictMax,
		Window:  rl.Window,
		Message: "Too many requests for this operation, please try again later.",
		Skip:    onlyPaths("/api/auth/register", "/api/users/patient/visit"),
	}, r.metrics))

	return middleware.RateLimit(r.counters, middleware.RateLimitConfig{
		Name:           "auth",
		Max:            rl.AuthMax,
		Window:         rl.Window,
		Message:        "Too many authentication attempts, please try again later.",
		SkipSuccessful: true,
	}, r.metrics)
}

func onlyPaths(paths ...string) func(c *gin.Context) bool {
	match := middleware.SkipPaths(paths...)
	return func(c *gin.Context) bool { return !match(c) }
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
