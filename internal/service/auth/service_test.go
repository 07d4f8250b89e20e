package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository/repotest"
	"github.com/codeveda/records-api/internal/service/audit"
	"github.com/codeveda/records-api/internal/session"
	"github.com/codeveda/records-api/pkg/auth"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/metrics"
	"github.com/codeveda/records-api/pkg/security"
)

type fixture struct {
	svc   *Service
	store *repotest.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore()
	m := metrics.NewNop()
	tokens := auth.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour, "codeveda-test")
	svc := NewService(store.Users(), tokens, session.NewMemoryStore(time.Minute),
		security.NewBcryptHasher(bcrypt.MinCost), audit.NewService(store.AuditLogs(), m), m)
	return &fixture{svc: svc, store: store}
}

var client = model.Actor{IPAddress: "10.0.0.1", UserAgent: "test"}

func (f *fixture) register(t *testing.T, email string, role model.Role) *model.UserProfile {
	t.Helper()
	profile, err := f.svc.Register(context.Background(), client, model.RegisterRequest{
		Email: email, Password: "secret123", FullName: "Test User", Role: role,
	})
	require.NoError(t, err)
	return profile
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	profile := f.register(t, "  Doc@Example.com ", model.RoleDoctor)
	assert.Equal(t, "doc@example.com", profile.Email)
	assert.Equal(t, model.RoleDoctor, profile.Role)
	assert.True(t, profile.IsActive)

	assert.Equal(t, []string{model.AuditActionCreate}, f.store.AuditActions())
	assert.Equal(t, []string{model.EventUserRegistered}, f.store.EventTypes())
	require.NotNil(t, f.store.Audits[0].UserID)
	assert.Equal(t, profile.ID, *f.store.Audits[0].UserID)
}

func TestRegister_DefaultsToPatient(t *testing.T) {
	f := newFixture(t)
	profile := f.register(t, "pat@example.com", "")
	assert.Equal(t, model.RolePatient, profile.Role)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "dup@example.com", model.RolePatient)

	_, err := f.svc.Register(context.Background(), client, model.RegisterRequest{
		Email: "DUP@example.com", Password: "secret123", FullName: "Again",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "doc@example.com", model.RoleDoctor)

	res, err := f.svc.Login(context.Background(), client, model.LoginRequest{Email: "doc@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Session.AccessToken)
	assert.NotEmpty(t, res.Session.RefreshToken)
	assert.NotNil(t, res.User.LastLoginAt)

	last := f.store.Audits[len(f.store.Audits)-1]
	assert.Equal(t, model.AuditActionLogin, last.Action)
	assert.Equal(t, true, last.NewValues["success"])

	user, claims, err := f.svc.Authenticate(context.Background(), res.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)
	assert.Equal(t, res.User.ID, claims.UserID)
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	profile := f.register(t, "doc@example.com", model.RoleDoctor)

	_, err := f.svc.Login(context.Background(), client, model.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	_, err = f.svc.Login(context.Background(), client, model.LoginRequest{Email: "doc@example.com", Password: "wrong-pass"})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	failures := 0
	for _, a := range f.store.Audits {
		if a.Action == model.AuditActionLogin && a.NewValues["success"] == false {
			failures++
		}
	}
	assert.Equal(t, 2, failures)

	user, err := f.store.Users().GetByID(context.Background(), profile.ID)
	require.NoError(t, err)
	user.IsActive = false
	f.store.Users().Seed(user)

	_, err = f.svc.Login(context.Background(), client, model.LoginRequest{Email: "doc@example.com", Password: "secret123"})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newFixture(t)
	f.register(t, "doc@example.com", model.RoleDoctor)
	res, err := f.svc.Login(context.Background(), client, model.LoginRequest{Email: "doc@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, claims, err := f.svc.Authenticate(context.Background(), res.Session.AccessToken)
	require.NoError(t, err)

	actor := client
	actor.UserID = claims.UserID
	require.NoError(t, f.svc.Logout(context.Background(), actor, claims.TokenID(), res.Session.RefreshToken))

	_, _, err = f.svc.Authenticate(context.Background(), res.Session.AccessToken)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	_, err = f.svc.Refresh(context.Background(), client, res.Session.RefreshToken)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestRefreshRotates(t *testing.T) {
	f := newFixture(t)
	f.register(t, "doc@example.com", model.RoleDoctor)
	res, err := f.svc.Login(context.Background(), client, model.LoginRequest{Email: "doc@example.com", Password: "secret123"})
	require.NoError(t, err)

	sess, err := f.svc.Refresh(context.Background(), client, res.Session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Session.RefreshToken, sess.RefreshToken)

	_, err = f.svc.Refresh(context.Background(), client, res.Session.RefreshToken)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized), "old refresh token must be revoked")

	_, _, err = f.svc.Authenticate(context.Background(), sess.AccessToken)
	assert.NoError(t, err)
}

func TestAuthenticate_RejectsRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "doc@example.com", model.RoleDoctor)
	res, err := f.svc.Login(context.Background(), client, model.LoginRequest{Email: "doc@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, _, err = f.svc.Authenticate(context.Background(), res.Session.RefreshToken)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	profile := f.register(t, "doc@example.com", model.RoleDoctor)
	actor := client
	actor.UserID = profile.ID

	_, err := f.svc.UpdateProfile(context.Background(), actor, model.ProfileUpdate{})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	name := "Dr. Renamed"
	updated, err := f.svc.UpdateProfile(context.Background(), actor, model.ProfileUpdate{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.FullName)

	last := f.store.Audits[len(f.store.Audits)-1]
	assert.Equal(t, model.AuditActionUpdate, last.Action)
	assert.Equal(t, "Test User", last.OldValues["fullName"])
	assert.Equal(t, name, last.NewValues["fullName"])
}
