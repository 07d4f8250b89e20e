package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codeveda/records-api/internal/repository"
	"github.com/codeveda/records-api/pkg/metrics"
)

// AuditCleanupWorker enforces the audit retention period.
type AuditCleanupWorker struct {
	repo            repository.AuditRepository
	retentionDays   int
	cleanupInterval time.Duration
	metrics         *metrics.Metrics
	now             func() time.Time
}

func NewAuditCleanupWorker(repo repository.AuditRepository, retentionDays int, cleanupInterval time.Duration, m *metrics.Metrics) *AuditCleanupWorker {
	return &AuditCleanupWorker{
		repo:            repo,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		metrics:         m,
		now:             time.Now,
	}
}

// Enabled is false when retention is 0 days or no interval is set.
func (w *AuditCleanupWorker) Enabled() bool {
	return w.retentionDays > 0 && w.cleanupInterval > 0
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	if !w.Enabled() {
		log.Info().Msg("audit retention disabled")
		return
	}

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				log.Error().Err(err).Msg("audit cleanup failed")
			}
		}
	}
}

// Cleanup deletes entries older than the retention period.
func (w *AuditCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	if !w.Enabled() {
		return 0, nil
	}
	cutoff := w.now().UTC().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	w.metrics.AuditRowsPurged.Add(float64(rows))

	log.Info().Int64("rows", rows).Time("cutoff", cutoff).Msg("cleaned up audit logs")
	return rows, nil
}
