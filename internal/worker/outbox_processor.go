package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
	"github.com/codeveda/records-api/pkg/messaging"
	"github.com/codeveda/records-api/pkg/metrics"
)

const (
	baseBackoff = 5 * time.Second
	maxBackoff  = 10 * time.Minute
)

// EventHandler receives every claimed outbox event. Handlers must tolerate
// redelivery.
type EventHandler interface {
	Handle(ctx context.Context, evt *model.OutboxEvent) error
}

type HandlerFunc func(ctx context.Context, evt *model.OutboxEvent) error

func (f HandlerFunc) Handle(ctx context.Context, evt *model.OutboxEvent) error { return f(ctx, evt) }

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	// Lease is how long a claimed event stays hidden from other workers.
	Lease time.Duration
}

func (c *OutboxProcessorConfig) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
}

type OutboxProcessor struct {
	repo     repository.OutboxRepository
	handlers []EventHandler
	config   OutboxProcessorConfig
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewOutboxProcessor(repo repository.OutboxRepository, config OutboxProcessorConfig, m *metrics.Metrics, handlers ...EventHandler) *OutboxProcessor {
	config.setDefaults()
	return &OutboxProcessor{
		repo:     repo,
		handlers: handlers,
		config:   config,
		metrics:  m,
		now:      time.Now,
	}
}

// Start polls until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	log.Info().Dur("poll_interval", p.config.PollInterval).Msg("starting outbox processor")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("failed to process outbox batch")
			}
		}
	}
}

// ProcessBatch claims one batch and dispatches it. It returns how many events
// were delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.Claim(ctx, p.config.BatchSize, p.config.Lease)
	if err != nil {
		return 0, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	p.metrics.OutboxQueueSize.Set(float64(len(events)))

	delivered := 0
	for _, evt := range events {
		if p.process(ctx, evt) {
			delivered++
		}
	}
	return delivered, nil
}

func (p *OutboxProcessor) process(ctx context.Context, evt *model.OutboxEvent) bool {
	logger := log.With().
		Str("event_id", evt.ID.String()).
		Str("event_type", evt.EventType).
		Int("attempt", evt.Attempts).
		Logger()

	if err := p.dispatch(ctx, evt); err != nil {
		dead := evt.Attempts >= p.config.MaxAttempts
		next := p.now().Add(backoff(evt.Attempts))
		if markErr := p.repo.MarkFailed(ctx, evt.ID, err.Error(), next, dead); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to record outbox failure")
		}
		if dead {
			p.metrics.OutboxEvents.WithLabelValues(string(model.OutboxStatusDead)).Inc()
			logger.Error().Err(err).Msg("outbox event exhausted its attempts")
		} else {
			p.metrics.OutboxEvents.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Time("next_attempt_at", next).Msg("outbox event failed")
		}
		return false
	}

	if err := p.repo.MarkProcessed(ctx, evt.ID); err != nil {
		logger.Error().Err(err).Msg("failed to mark outbox event processed")
		return false
	}
	p.metrics.OutboxEvents.WithLabelValues(string(model.OutboxStatusProcessed)).Inc()
	return true
}

func (p *OutboxProcessor) dispatch(ctx context.Context, evt *model.OutboxEvent) error {
	for _, h := range p.handlers {
		if err := h.Handle(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// backoff doubles per attempt from baseBackoff up to maxBackoff.
func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Publisher forwards events to a broker channel.
func Publisher(broker messaging.Broker, channel string) EventHandler {
	return HandlerFunc(func(ctx context.Context, evt *model.OutboxEvent) error {
		return broker.Publish(ctx, channel, messaging.Message{
			ID:            evt.ID.String(),
			Type:          evt.EventType,
			AggregateType: evt.AggregateType,
			AggregateID:   evt.AggregateID,
			OccurredAt:    evt.CreatedAt,
			Payload:       evt.Payload,
		})
	})
}
