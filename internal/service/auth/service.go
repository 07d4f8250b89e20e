package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
	"github.com/codeveda/records-api/internal/service/audit"
	"github.com/codeveda/records-api/internal/session"
	"github.com/codeveda/records-api/pkg/auth"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/metrics"
	"github.com/codeveda/records-api/pkg/security"
)

var errInvalidCredentials = apperrors.Unauthorized("Invalid credentials", nil)

type AuthServicer interface {
	Register(ctx context.Context, actor model.Actor, req model.RegisterRequest) (*model.UserProfile, error)
	Login(ctx context.Context, actor model.Actor, req model.LoginRequest) (*model.LoginResult, error)
	Logout(ctx context.Context, actor model.Actor, tokenID, refreshToken string) error
	Refresh(ctx context.Context, actor model.Actor, refreshToken string) (*model.Session, error)
	Authenticate(ctx context.Context, token string) (*model.User, *auth.Claims, error)
	Me(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error)
	UpdateProfile(ctx context.Context, actor model.Actor, upd model.ProfileUpdate) (*model.UserProfile, error)
}

type Service struct {
	users    repository.UserRepository
	tokens   *auth.TokenManager
	sessions session.Store
	hasher   security.PasswordHasher
	auditor  audit.Recorder
	metrics  *metrics.Metrics
}

func NewService(users repository.UserRepository, tokens *auth.TokenManager, sessions session.Store,
	hasher security.PasswordHasher, auditor audit.Recorder, m *metrics.Metrics) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		hasher:   hasher,
		auditor:  auditor,
		metrics:  m,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, actor model.Actor, req model.RegisterRequest) (*model.UserProfile, error) {
	email := normalizeEmail(req.Email)

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.Conflict("User already exists", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, apperrors.BadRequest("Password must be at least 6 characters long", err)
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = model.RolePatient
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  hash,
		FullName:      strings.TrimSpace(req.FullName),
		Role:          role,
		Phone:         model.StrPtr(req.Phone),
		LicenseNumber: model.StrPtr(req.LicenseNumber),
		Organization:  model.StrPtr(req.Organization),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// self-registration is audited as the new user
	if actor.UserID == uuid.Nil {
		actor.UserID = user.ID
	}
	profile := user.Profile()
	evt, err := model.NewOutboxEvent(model.EventUserRegistered, model.AuditResourceUser, user.ID.String(), model.UserEventPayload{
		UserID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role, ActorID: actor.UserID,
	})
	if err != nil {
		return nil, err
	}
	change := repository.Change{
		Audit:  model.NewAuditLog(actor, model.AuditActionCreate, model.AuditResourceUser, user.ID.String(), nil, profile),
		Events: []*model.OutboxEvent{evt},
	}

	if err := s.users.Create(ctx, user, change); err != nil {
		return nil, err
	}
	s.auditor.Committed(change.Audit)
	return &profile, nil
}

func (s *Service) loginAudit(actor model.Actor, userID uuid.UUID, email string, success bool, reason string) *model.AuditLog {
	actor.UserID = userID
	values := map[string]interface{}{"email": email, "success": success}
	if reason != "" {
		values["reason"] = reason
	}
	resourceID := ""
	if userID != uuid.Nil {
		resourceID = userID.String()
	}
	return model.NewAuditLog(actor, model.AuditActionLogin, model.AuditResourceUser, resourceID, nil, values)
}

func (s *Service) Login(ctx context.Context, actor model.Actor, req model.LoginRequest) (*model.LoginResult, error) {
	email := normalizeEmail(req.Email)

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.AuthAttempts.WithLabelValues("unknown_user").Inc()
		s.auditor.Record(ctx, s.loginAudit(actor, uuid.Nil, email, false, "unknown email"))
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.metrics.AuthAttempts.WithLabelValues("bad_password").Inc()
		s.auditor.Record(ctx, s.loginAudit(actor, user.ID, email, false, "invalid password"))
		return nil, errInvalidCredentials
	}

	if !user.IsActive {
		s.metrics.AuthAttempts.WithLabelValues("inactive").Inc()
		s.auditor.Record(ctx, s.loginAudit(actor, user.ID, email, false, "account inactive"))
		return nil, apperrors.Forbidden("Account is deactivated")
	}

	sess, err := s.openSession(ctx, user)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record last login")
	} else {
		user.LastLoginAt = &now
	}

	s.metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.auditor.Record(ctx, s.loginAudit(actor, user.ID, email, true, ""))

	return &model.LoginResult{User: user.Profile(), Session: *sess}, nil
}

// openSession issues a token pair and puts both token ids on the allow-list.
func (s *Service) openSession(ctx context.Context, user *model.User) (*model.Session, error) {
	pair, err := s.tokens.Issue(auth.Subject{UserID: user.ID, Email: user.Email, Role: string(user.Role)})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.sessions.Create(ctx, user.ID, pair.Access.ID, pair.Access.ExpiresAt.Sub(now)); err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, user.ID, pair.Refresh.ID, pair.Refresh.ExpiresAt.Sub(now)); err != nil {
		return nil, err
	}

	return &model.Session{
		AccessToken:  pair.Access.Token,
		RefreshToken: pair.Refresh.Token,
		ExpiresAt:    pair.Access.ExpiresAt,
	}, nil
}

// Logout revokes the access token in use and, when the client sends it,
// the refresh token of the same login.
func (s *Service) Logout(ctx context.Context, actor model.Actor, tokenID, refreshToken string) error {
	if err := s.sessions.Revoke(ctx, actor.UserID, tokenID); err != nil {
		return err
	}
	if refreshToken != "" {
		if claims, err := s.tokens.ValidateRefresh(refreshToken); err == nil && claims.UserID == actor.UserID {
			if err := s.sessions.Revoke(ctx, actor.UserID, claims.TokenID()); err != nil {
				return err
			}
		}
	}

	s.auditor.Record(ctx, model.NewAuditLog(actor, model.AuditActionLogout, model.AuditResourceUser, actor.UserID.String(), nil, nil))
	return nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, actor model.Actor, refreshToken string) (*model.Session, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("Invalid or expired refresh token", err)
	}

	ok, err := s.sessions.Exists(ctx, claims.UserID, claims.TokenID())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Unauthorized("Refresh token has been revoked", nil)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized("User profile not found", err)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.Forbidden("Account is deactivated")
	}

	if err := s.sessions.Revoke(ctx, user.ID, claims.TokenID()); err != nil {
		return nil, err
	}
	return s.openSession(ctx, user)
}

// Authenticate resolves a bearer token to an active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, *auth.Claims, error) {
	claims, err := s.tokens.ValidateAccess(token)
	if err != nil {
		return nil, nil, apperrors.Unauthorized("Invalid or expired token", err)
	}

	ok, err := s.sessions.Exists(ctx, claims.UserID, claims.TokenID())
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, apperrors.Unauthorized("Session has been revoked", nil)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperrors.Unauthorized("User profile not found", err)
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, apperrors.Forbidden("Account is deactivated")
	}
	return user, claims, nil
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("User profile", err)
	}
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

func (s *Service) UpdateProfile(ctx context.Context, actor model.Actor, upd model.ProfileUpdate) (*model.UserProfile, error) {
	if upd.IsEmpty() {
		return nil, apperrors.BadRequest("No data to update", nil)
	}
	if upd.FullName != nil && strings.TrimSpace(*upd.FullName) == "" {
		return nil, apperrors.BadRequest("fullName cannot be empty", nil)
	}

	user, err := s.users.GetByID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("User profile", err)
	}
	if err != nil {
		return nil, err
	}

	before := user.Profile()
	updated := model.UserUpdate{FullName: upd.FullName, Phone: upd.Phone, Organization: upd.Organization}.Apply(*user)
	updated.UpdatedAt = time.Now().UTC()
	after := updated.Profile()

	change := repository.Change{
		Audit: model.NewAuditLog(actor, model.AuditActionUpdate, model.AuditResourceUser, user.ID.String(), before, after),
	}
	if err := s.users.Update(ctx, &updated, change); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("User profile", err)
		}
		return nil, err
	}
	s.auditor.Committed(change.Audit)
	return &after, nil
}
