package code

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
	"github.com/codeveda/records-api/internal/service/audit"
	apperrors "github.com/codeveda/records-api/pkg/errors"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
	defaultConfidence  = 1.0

	keyCategories   = "categories"
	keyAyushSystems = "ayush_systems"
	keyNamaste      = "namaste:"
)

type CodeServicer interface {
	Search(ctx context.Context, actor model.Actor, q model.CodeSearch) ([]*model.CodeMapping, error)
	List(ctx context.Context, filter model.CodeFilter) ([]*model.CodeMapping, int, error)
	GetByNamasteCode(ctx context.Context, code string) (*model.CodeMapping, error)
	Categories(ctx context.Context) ([]string, error)
	AyushSystems(ctx context.Context) ([]string, error)
	Create(ctx context.Context, actor model.Actor, req model.CreateCodeRequest) (*model.CodeMapping, error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, upd model.CodeMappingUpdate) (*model.CodeMapping, error)
	Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error
	Stats(ctx context.Context) (*model.CodeStats, error)
}

type Service struct {
	repo    repository.CodeRepository
	auditor audit.Recorder
	cache   *cache.Cache
}

// NewService caches lookups for ttl. Any write clears the cache.
func NewService(repo repository.CodeRepository, auditor audit.Recorder, ttl time.Duration) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		cache:   cache.New(ttl, 2*ttl),
	}
}

func (s *Service) Search(ctx context.Context, actor model.Actor, q model.CodeSearch) ([]*model.CodeMapping, error) {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" && q.Category == "" && q.AyushSystem == "" {
		return nil, apperrors.BadRequest("At least one search parameter is required (q, category, or ayush_system)", nil)
	}
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}
	if q.Limit > maxSearchLimit {
		q.Limit = maxSearchLimit
	}

	results, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, model.NewAuditLog(actor, model.AuditActionSearch, model.AuditResourceCodeMapping, "", nil,
		map[string]interface{}{"query": q, "results_count": len(results)}))
	return results, nil
}

func (s *Service) List(ctx context.Context, filter model.CodeFilter) ([]*model.CodeMapping, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) GetByNamasteCode(ctx context.Context, code string) (*model.CodeMapping, error) {
	code = strings.TrimSpace(code)
	if v, ok := s.cache.Get(keyNamaste + code); ok {
		m := v.(model.CodeMapping)
		return &m, nil
	}

	m, err := s.repo.GetActiveByNamasteCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("NAMASTE code", err)
	}
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(keyNamaste+code, *m)
	return m, nil
}

func (s *Service) cachedList(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	if v, ok := s.cache.Get(key); ok {
		return v.([]string), nil
	}
	values, err := load(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, values)
	return values, nil
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.cachedList(ctx, keyCategories, s.repo.Categories)
}

func (s *Service) AyushSystems(ctx context.Context) ([]string, error) {
	return s.cachedList(ctx, keyAyushSystems, s.repo.AyushSystems)
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req model.CreateCodeRequest) (*model.CodeMapping, error) {
	code := strings.TrimSpace(req.NamasteCode)
	exists, err := s.repo.ExistsByNamasteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.Conflict("NAMASTE code already exists", nil)
	}

	confidence := defaultConfidence
	if req.ConfidenceScore != nil {
		confidence = *req.ConfidenceScore
	}
	if confidence < 0 || confidence > 1 {
		return nil, apperrors.BadRequest("Confidence score must be between 0 and 1", nil)
	}

	now := time.Now().UTC()
	createdBy := actor.UserID
	m := &model.CodeMapping{
		ID:                 uuid.New(),
		NamasteCode:        code,
		NamasteLabel:       strings.TrimSpace(req.NamasteLabel),
		NamasteDescription: model.StrPtr(req.NamasteDescription),
		ICD11Code:          strings.TrimSpace(req.ICD11Code),
		ICD11Label:         strings.TrimSpace(req.ICD11Label),
		ICD11Description:   model.StrPtr(req.ICD11Description),
		Category:           model.StrPtr(req.Category),
		AyushSystem:        model.StrPtr(req.AyushSystem),
		ConfidenceScore:    confidence,
		IsActive:           true,
		CreatedBy:          &createdBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	change, err := s.change(actor, model.AuditActionCreate, m, nil, m)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, m, change); err != nil {
		return nil, err
	}
	s.committed(change)
	return m, nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, upd model.CodeMappingUpdate) (*model.CodeMapping, error) {
	if upd.IsEmpty() {
		return nil, apperrors.BadRequest("No data to update", nil)
	}
	if upd.ConfidenceScore != nil && (*upd.ConfidenceScore < 0 || *upd.ConfidenceScore > 1) {
		return nil, apperrors.BadRequest("Confidence score must be between 0 and 1", nil)
	}

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := upd.Apply(*current)
	updated.UpdatedAt = time.Now().UTC()

	change, err := s.change(actor, model.AuditActionUpdate, &updated, current, &updated)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &updated, change); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("Code mapping", err)
		}
		return nil, err
	}
	s.committed(change)
	return &updated, nil
}

// Delete deactivates the mapping; rows are never removed.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	current, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	updated := *current
	updated.IsActive = false
	updated.UpdatedAt = time.Now().UTC()

	change, err := s.change(actor, model.AuditActionDelete, &updated, current, map[string]interface{}{"is_active": false})
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, &updated, change); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("Code mapping", err)
		}
		return err
	}
	s.committed(change)
	return nil
}

func (s *Service) Stats(ctx context.Context) (*model.CodeStats, error) {
	return s.repo.Stats(ctx)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.CodeMapping, error) {
	m, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Code mapping", err)
	}
	return m, err
}

func (s *Service) change(actor model.Actor, action string, m *model.CodeMapping, before, after interface{}) (repository.Change, error) {
	evt, err := model.NewOutboxEvent(model.EventCodeMappingChanged, model.AuditResourceCodeMapping, m.ID.String(), map[string]interface{}{
		"action":       action,
		"namaste_code": m.NamasteCode,
		"icd11_code":   m.ICD11Code,
		"is_active":    m.IsActive,
	})
	if err != nil {
		return repository.Change{}, err
	}
	return repository.Change{
		Audit:  model.NewAuditLog(actor, action, model.AuditResourceCodeMapping, m.ID.String(), before, after),
		Events: []*model.OutboxEvent{evt},
	}, nil
}

func (s *Service) committed(change repository.Change) {
	s.cache.Flush()
	s.auditor.Committed(change.Audit)
}
