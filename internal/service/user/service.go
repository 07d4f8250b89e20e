package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
	"github.com/codeveda/records-api/internal/service/audit"
	"github.com/codeveda/records-api/internal/session"
	apperrors "github.com/codeveda/records-api/pkg/errors"
)

const (
	minSearchLen       = 2
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type UserServicer interface {
	List(ctx context.Context, filter model.UserFilter) ([]*model.UserProfile, int, error)
	Get(ctx context.Context, id uuid.UUID) (*model.UserProfile, error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, upd model.UserUpdate) (*model.UserProfile, error)
	Deactivate(ctx context.Context, actor model.Actor, id uuid.UUID) error
	Stats(ctx context.Context) (*model.UserStats, error)
	Search(ctx context.Context, query string, role model.Role, limit int) ([]*model.UserSummary, error)
	LookupPatient(ctx context.Context, email string) (*model.UserSummary, error)
}

type Service struct {
	repo     repository.UserRepository
	sessions session.Store
	auditor  audit.Recorder
}

func NewService(repo repository.UserRepository, sessions session.Store, auditor audit.Recorder) *Service {
	return &Service{repo: repo, sessions: sessions, auditor: auditor}
}

func profiles(users []*model.User) []*model.UserProfile {
	out := make([]*model.UserProfile, len(users))
	for i, u := range users {
		p := u.Profile()
		out[i] = &p
	}
	return out
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("User", err)
	}
	return user, err
}

func (s *Service) List(ctx context.Context, filter model.UserFilter) ([]*model.UserProfile, int, error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, 0, apperrors.BadRequest("Invalid role filter", nil)
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return profiles(users), total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.UserProfile, error) {
	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	p := user.Profile()
	return &p, nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, upd model.UserUpdate) (*model.UserProfile, error) {
	if upd.IsEmpty() {
		return nil, apperrors.BadRequest("No data to update", nil)
	}
	if id == actor.UserID && upd.IsActive != nil && !*upd.IsActive {
		return nil, apperrors.BadRequest("Cannot deactivate your own account", nil)
	}
	if upd.FullName != nil && strings.TrimSpace(*upd.FullName) == "" {
		return nil, apperrors.BadRequest("fullName cannot be empty", nil)
	}

	user, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	before := user.Profile()
	updated := upd.Apply(*user)
	updated.UpdatedAt = time.Now().UTC()
	after := updated.Profile()

	change := repository.Change{
		Audit: model.NewAuditLog(actor, model.AuditActionUpdate, model.AuditResourceUser, id.String(), before, after),
	}
	if user.IsActive && !updated.IsActive {
		evt, err := deactivatedEvent(actor, &updated)
		if err != nil {
			return nil, err
		}
		change.Events = append(change.Events, evt)
	}

	if err := s.repo.Update(ctx, &updated, change); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("User", err)
		}
		return nil, err
	}
	s.auditor.Committed(change.Audit)

	if !updated.IsActive {
		s.revokeSessions(ctx, id)
	}
	return &after, nil
}

// Deactivate soft deletes a user and ends all of their sessions.
func (s *Service) Deactivate(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if id == actor.UserID {
		return apperrors.BadRequest("Cannot delete your own account", nil)
	}

	user, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	before := user.Profile()
	updated := *user
	updated.IsActive = false
	updated.UpdatedAt = time.Now().UTC()

	evt, err := deactivatedEvent(actor, &updated)
	if err != nil {
		return err
	}
	change := repository.Change{
		Audit:  model.NewAuditLog(actor, model.AuditActionDelete, model.AuditResourceUser, id.String(), before, map[string]interface{}{"isActive": false}),
		Events: []*model.OutboxEvent{evt},
	}
	if err := s.repo.Update(ctx, &updated, change); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("User", err)
		}
		return err
	}
	s.auditor.Committed(change.Audit)
	s.revokeSessions(ctx, id)
	return nil
}

func deactivatedEvent(actor model.Actor, u *model.User) (*model.OutboxEvent, error) {
	return model.NewOutboxEvent(model.EventUserDeactivated, model.AuditResourceUser, u.ID.String(), model.UserEventPayload{
		UserID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role, ActorID: actor.UserID,
	})
}

func (s *Service) revokeSessions(ctx context.Context, id uuid.UUID) {
	if err := s.sessions.RevokeAll(ctx, id); err != nil {
		log.Error().Err(err).Str("user_id", id.String()).Msg("failed to revoke sessions")
	}
}

func (s *Service) Stats(ctx context.Context) (*model.UserStats, error) {
	return s.repo.Stats(ctx, time.Now().UTC())
}

func (s *Service) Search(ctx context.Context, query string, role model.Role, limit int) ([]*model.UserSummary, error) {
	query = strings.TrimSpace(query)
	if len(query) < minSearchLen {
		return nil, apperrors.BadRequest("Search query must be at least 2 characters", nil)
	}
	if role != "" && !role.Valid() {
		return nil, apperrors.BadRequest("Invalid role filter", nil)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.repo.SearchActive(ctx, query, role, limit)
}

func (s *Service) LookupPatient(ctx context.Context, email string) (*model.UserSummary, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperrors.BadRequest("Email is required", nil)
	}
	user, err := s.repo.GetActivePatientByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Patient", err)
	}
	if err != nil {
		return nil, err
	}
	return &model.UserSummary{ID: user.ID, Name: user.FullName, Email: user.Email, Role: user.Role}, nil
}
