package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository/repotest"
	"github.com/codeveda/records-api/internal/service/audit"
	"github.com/codeveda/records-api/internal/session"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/metrics"
)

func setup(t *testing.T) (*Service, *repotest.Store, *session.MemoryStore, model.Actor) {
	t.Helper()
	store := repotest.NewStore()
	sessions := session.NewMemoryStore(time.Minute)
	svc := NewService(store.Users(), sessions, audit.NewService(store.AuditLogs(), metrics.NewNop()))

	admin := store.Users().Seed(&model.User{Email: "admin@example.com", FullName: "Admin", Role: model.RoleAdmin, IsActive: true})
	return svc, store, sessions, model.Actor{UserID: admin.ID, Role: model.RoleAdmin}
}

func TestUpdate(t *testing.T) {
	svc, store, _, admin := setup(t)
	doc := store.Users().Seed(&model.User{Email: "doc@example.com", FullName: "Doc", Role: model.RoleDoctor, IsActive: true})

	_, err := svc.Update(context.Background(), admin, doc.ID, model.UserUpdate{})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	org := "AIIA"
	p, err := svc.Update(context.Background(), admin, doc.ID, model.UserUpdate{Organization: &org})
	require.NoError(t, err)
	assert.Equal(t, "AIIA", model.StrVal(p.Organization))
	assert.Equal(t, []string{model.AuditActionUpdate}, store.AuditActions())

	_, err = svc.Update(context.Background(), admin, uuid.New(), model.UserUpdate{Organization: &org})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestUpdate_CannotDeactivateSelf(t *testing.T) {
	svc, _, _, admin := setup(t)
	inactive := false
	_, err := svc.Update(context.Background(), admin, admin.UserID, model.UserUpdate{IsActive: &inactive})
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "Cannot deactivate your own account", appErr.Message)
}

func TestDeactivate(t *testing.T) {
	svc, store, sessions, admin := setup(t)
	doc := store.Users().Seed(&model.User{Email: "doc@example.com", FullName: "Doc", Role: model.RoleDoctor, IsActive: true})
	require.NoError(t, sessions.Create(context.Background(), doc.ID, "tok", time.Hour))

	assert.True(t, apperrors.Is(svc.Deactivate(context.Background(), admin, admin.UserID), apperrors.ErrBadRequest))

	require.NoError(t, svc.Deactivate(context.Background(), admin, doc.ID))

	got, err := store.Users().GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, []string{model.AuditActionDelete}, store.AuditActions())
	assert.Equal(t, []string{model.EventUserDeactivated}, store.EventTypes())

	ok, err := sessions.Exists(context.Background(), doc.ID, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	svc, store, _, _ := setup(t)
	store.Users().Seed(&model.User{Email: "ravi@example.com", FullName: "Ravi Kumar", Role: model.RolePatient, IsActive: true})
	store.Users().Seed(&model.User{Email: "ravina@example.com", FullName: "Ravina", Role: model.RolePatient, IsActive: false})

	_, err := svc.Search(context.Background(), "r", "", 0)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	res, err := svc.Search(context.Background(), "rav", model.RolePatient, 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Ravi Kumar", res[0].Name)
}

func TestLookupPatient(t *testing.T) {
	svc, store, _, _ := setup(t)
	store.Users().Seed(&model.User{Email: "pat@example.com", FullName: "Pat", Role: model.RolePatient, IsActive: true})

	p, err := svc.LookupPatient(context.Background(), "PAT@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Pat", p.Name)

	_, err = svc.LookupPatient(context.Background(), "admin@example.com")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = svc.LookupPatient(context.Background(), " ")
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestStats(t *testing.T) {
	svc, store, _, _ := setup(t)
	store.Users().Seed(&model.User{Email: "d@example.com", Role: model.RoleDoctor, IsActive: false})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Inactive)
	assert.Equal(t, 1, stats.ByRole["doctor"])
}
