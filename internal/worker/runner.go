package worker

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/codeveda/records-api/internal/config"
	"github.com/codeveda/records-api/internal/email"
	"github.com/codeveda/records-api/internal/repository"
	redisbroker "github.com/codeveda/records-api/pkg/messaging/redis"
	"github.com/codeveda/records-api/pkg/metrics"
)

// Repositories the background jobs read and write.
type Repositories struct {
	Outbox repository.OutboxRepository
	Audit  repository.AuditRepository
}

// Run starts the outbox processor and the audit retention job and blocks
// until ctx is cancelled and both have stopped. A nil client disables broker
// publishing.
func Run(ctx context.Context, cfg *config.Config, repos Repositories, client *redis.Client, m *metrics.Metrics) {
	var handlers []EventHandler
	if client != nil {
		broker := redisbroker.NewRedisBroker(client, log.Logger)
		handlers = append(handlers, Publisher(broker, cfg.Outbox.Channel))
	} else {
		log.Warn().Msg("redis disabled, outbox events will not be published")
	}

	var sender email.Sender = email.LogSender{}
	if cfg.SMTP.Enabled {
		sender = email.NewSMTPSender(cfg.SMTP)
	}
	handlers = append(handlers, email.NewNotifier(sender))

	processor := NewOutboxProcessor(repos.Outbox, OutboxProcessorConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, m, handlers...)
	cleanup := NewAuditCleanupWorker(repos.Audit, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval, m)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	wg.Wait()
}
