package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/metrics"
)

// Recorder is what other services use to account for audit entries.
// Record stores a standalone entry (reads, searches, failed logins);
// Committed counts entries that were written inside a repository
// transaction.
type Recorder interface {
	Record(ctx context.Context, entry *model.AuditLog)
	Committed(entries ...*model.AuditLog)
}

type AuditServicer interface {
	Recorder
	List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int, error)
	Get(ctx context.Context, id uuid.UUID) (*model.AuditLog, error)
	Stats(ctx context.Context, period model.DateRange) (*model.AuditStats, error)
}

type Service struct {
	repo    repository.AuditRepository
	metrics *metrics.Metrics
}

func NewService(repo repository.AuditRepository, m *metrics.Metrics) *Service {
	return &Service{repo: repo, metrics: m}
}

// Record writes entry outside any transaction. Failures are logged, never
// returned: the request being audited has already been answered.
func (s *Service) Record(ctx context.Context, entry *model.AuditLog) {
	if entry == nil {
		return
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("action", entry.Action).
			Str("resource_type", entry.ResourceType).
			Msg("failed to write audit log")
		return
	}
	s.Committed(entry)
}

func (s *Service) Committed(entries ...*model.AuditLog) {
	for _, e := range entries {
		if e == nil {
			continue
		}
		s.metrics.AuditEntries.WithLabelValues(e.Action, e.ResourceType).Inc()
	}
}

func (s *Service) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, apperrors.BadRequest("end_date must not be before start_date", nil)
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.AuditLog, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Audit log", err)
	}
	return entry, err
}

// Stats defaults to the last 30 days when the period is open.
func (s *Service) Stats(ctx context.Context, period model.DateRange) (*model.AuditStats, error) {
	now := time.Now().UTC()
	if period.To.IsZero() {
		period.To = now
	}
	if period.From.IsZero() {
		period.From = period.To.AddDate(0, 0, -30)
	}
	if period.To.Before(period.From) {
		return nil, apperrors.BadRequest("end_date must not be before start_date", nil)
	}
	return s.repo.Stats(ctx, period)
}
