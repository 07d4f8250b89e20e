package consent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
	"github.com/codeveda/records-api/internal/service/audit"
	apperrors "github.com/codeveda/records-api/pkg/errors"
)

type ConsentServicer interface {
	List(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.Consent, error)
	Create(ctx context.Context, actor model.Actor, patientID uuid.UUID, req model.CreateConsentRequest) (*model.Consent, error)
	Update(ctx context.Context, actor model.Actor, patientID, id uuid.UUID, upd model.ConsentUpdate) (*model.Consent, error)
}

type Service struct {
	repo    repository.ConsentRepository
	users   repository.UserRepository
	auditor audit.Recorder
}

func NewService(repo repository.ConsentRepository, users repository.UserRepository, auditor audit.Recorder) *Service {
	return &Service{repo: repo, users: users, auditor: auditor}
}

func (s *Service) List(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.Consent, error) {
	if actor.Role == model.RolePatient && actor.UserID != patientID {
		return nil, apperrors.Forbidden("Access denied: cannot view other patients' consents")
	}
	return s.repo.ListByPatient(ctx, patientID)
}

// only the patient or an admin records consent decisions
func canManage(actor model.Actor, patientID uuid.UUID) bool {
	return actor.IsAdmin() || (actor.Role == model.RolePatient && actor.UserID == patientID)
}

func validPeriod(start, end *time.Time) bool {
	return start == nil || end == nil || !end.Before(*start)
}

func (s *Service) Create(ctx context.Context, actor model.Actor, patientID uuid.UUID, req model.CreateConsentRequest) (*model.Consent, error) {
	if !canManage(actor, patientID) {
		return nil, apperrors.Forbidden("Only the patient or an admin can record consent")
	}
	if strings.TrimSpace(req.Scope) == "" {
		return nil, apperrors.BadRequest("scope is required", nil)
	}
	if req.Provision != model.ConsentPermit && req.Provision != model.ConsentDeny {
		return nil, apperrors.BadRequest("provision must be permit or deny", nil)
	}
	if !validPeriod(req.PeriodStart, req.PeriodEnd) {
		return nil, apperrors.BadRequest("period_end must not be before period_start", nil)
	}

	patient, err := s.users.GetByID(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && patient.Role != model.RolePatient) {
		return nil, apperrors.NotFound("Patient", err)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &model.Consent{
		ID:          uuid.New(),
		PatientID:   patientID,
		Scope:       strings.TrimSpace(req.Scope),
		Provision:   req.Provision,
		Purpose:     model.StrPtr(req.Purpose),
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Status:      model.ConsentStatusActive,
		Version:     1,
		RecordedBy:  actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.GranteeID != "" {
		grantee, err := uuid.Parse(req.GranteeID)
		if err != nil {
			return nil, apperrors.BadRequest("Invalid grantee ID format", err)
		}
		c.GranteeID = &grantee
	}

	change, err := consentChange(actor, model.AuditActionCreate, c, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c, change); err != nil {
		return nil, err
	}
	s.auditor.Committed(change.Audit)
	return c, nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, patientID, id uuid.UUID, upd model.ConsentUpdate) (*model.Consent, error) {
	if !canManage(actor, patientID) {
		return nil, apperrors.Forbidden("Only the patient or an admin can change consent")
	}
	if upd.IsEmpty() {
		return nil, apperrors.BadRequest("No data to update", nil)
	}

	current, err := s.repo.Get(ctx, patientID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Consent", err)
	}
	if err != nil {
		return nil, err
	}

	updated := upd.Apply(*current)
	if !validPeriod(updated.PeriodStart, updated.PeriodEnd) {
		return nil, apperrors.BadRequest("period_end must not be before period_start", nil)
	}
	updated.UpdatedAt = time.Now().UTC()
	updated.Version = current.Version + 1

	change, err := consentChange(actor, model.AuditActionUpdate, &updated, current)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &updated, current.Version, change); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, apperrors.Conflict("Consent was modified by another user", err)
		}
		return nil, err
	}
	s.auditor.Committed(change.Audit)
	return &updated, nil
}

func consentChange(actor model.Actor, action string, c *model.Consent, before *model.Consent) (repository.Change, error) {
	evt, err := model.NewOutboxEvent(model.EventConsentChanged, model.AuditResourceConsent, c.ID.String(), map[string]interface{}{
		"consent_id": c.ID,
		"patient_id": c.PatientID,
		"provision":  c.Provision,
		"status":     c.Status,
		"version":    c.Version,
	})
	if err != nil {
		return repository.Change{}, err
	}
	var old interface{}
	if before != nil {
		old = before
	}
	return repository.Change{
		Audit:  model.NewAuditLog(actor, action, model.AuditResourceConsent, c.ID.String(), old, c),
		Events: []*model.OutboxEvent{evt},
	}, nil
}
