package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/codeveda/records-api/internal/config"
	"github.com/codeveda/records-api/internal/repository/postgres"
	"github.com/codeveda/records-api/internal/worker"
	"github.com/codeveda/records-api/pkg/logger"
	redisbroker "github.com/codeveda/records-api/pkg/messaging/redis"
	"github.com/codeveda/records-api/pkg/metrics"
)

// The standalone worker drains the outbox and enforces audit retention for
// deployments that run the API with outbox.embedded=false.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Service: "codeveda-worker"})

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

	base := postgres.NewBaseRepository(db)
	repos := worker.Repositories{
		Outbox: postgres.NewOutboxRepository(base),
		Audit:  postgres.NewAuditRepository(base),
	}

	log.Info().Msg("worker started")
	worker.Run(ctx, cfg, repos, client, metrics.New("codeveda", nil))
	log.Info().Msg("worker stopped")
}
