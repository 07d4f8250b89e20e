package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

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
	"github.com/codeveda/records-api/internal/repository/postgres"
	"github.com/codeveda/records-api/internal/router"
	auditService "github.com/codeveda/records-api/internal/service/audit"
	authService "github.com/codeveda/records-api/internal/service/auth"
	codeService "github.com/codeveda/records-api/internal/service/code"
	consentService "github.com/codeveda/records-api/internal/service/consent"
	encounterService "github.com/codeveda/records-api/internal/service/encounter"
	userService "github.com/codeveda/records-api/internal/service/user"
	visitService "github.com/codeveda/records-api/internal/service/visit"
	"github.com/codeveda/records-api/internal/session"
	"github.com/codeveda/records-api/internal/worker"
	"github.com/codeveda/records-api/pkg/auth"
	"github.com/codeveda/records-api/pkg/logger"
	redisbroker "github.com/codeveda/records-api/pkg/messaging/redis"
	"github.com/codeveda/records-api/pkg/metrics"
	"github.com/codeveda/records-api/pkg/security"
	"github.com/codeveda/records-api/pkg/validator"
)

const codeCacheTTL = 5 * time.Minute

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Service: "codeveda-api"})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	validator.RegisterWithGin()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	var client *redis.Client
	if cfg.Redis.Enabled {
		client, err = redisbroker.NewClient(ctx, redisbroker.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer client.Close()
	}

	promHandler := prometheus.New()
	m := metrics.New("codeveda", promHandler.Registry())

	// Repositories
	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(base)
	codeRepo := postgres.NewCodeRepository(base)
	visitRepo := postgres.NewVisitRepository(base)
	consentRepo := postgres.NewConsentRepository(base)
	auditRepo := postgres.NewAuditRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	encounterRepo := postgres.NewEncounterRepository(base)

	var sessions session.Store
	var counters middleware.CounterStore
	if client != nil {
		sessions = session.NewRedisStore(client)
		counters = middleware.NewRedisCounter(client)
	} else {
		sessions = session.NewMemoryStore(time.Minute)
		counters = middleware.NewMemoryCounter(time.Minute)
	}

	encryptor, err := security.NewAESEncryptorFromSecret(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, cfg.JWT.Issuer)

	// Services
	auditor := auditService.NewService(auditRepo, m)
	authSvc := authService.NewService(userRepo, tokens, sessions, security.NewBcryptHasher(cfg.Security.BcryptCost), auditor, m)
	userSvc := userService.NewService(userRepo, sessions, auditor)
	codeSvc := codeService.NewService(codeRepo, auditor, codeCacheTTL)
	visitSvc := visitService.NewService(visitRepo, userRepo, codeRepo, auditor)
	consentSvc := consentService.NewService(consentRepo, userRepo, auditor)
	encounterSvc := encounterService.NewService(encounterRepo, encryptor, auditor)

	checks := map[string]health.Pinger{"database": db}
	if client != nil {
		checks["redis"] = health.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	r := router.NewRouter(cfg, middleware.NewAuthMiddleware(authSvc, !cfg.IsProduction()), counters, m, router.Handlers{
		Auth:       authHandler.NewHandler(authSvc),
		Users:      userHandler.NewHandler(userSvc, visitSvc),
		Codes:      codeHandler.NewHandler(codeSvc),
		Patients:   patientHandler.NewHandler(visitSvc, consentSvc, auditor),
		Audit:      auditHandler.NewHandler(auditor),
		Encounter:  encounterHandler.NewHandler(encounterSvc),
		Health:     health.NewHandler(cfg.Server.Version, checks),
		Prometheus: promHandler,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var wg sync.WaitGroup
	if cfg.Outbox.Embedded {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx, cfg, worker.Repositories{Outbox: outboxRepo, Audit: auditRepo}, client, m)
		}()
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("environment", cfg.Environment).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	wg.Wait()

	log.Info().Msg("server exited properly")
}
