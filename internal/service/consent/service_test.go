package consent

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
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/metrics"
)

func setup(t *testing.T) (*Service, *repotest.Store, model.Actor) {
	t.Helper()
	store := repotest.NewStore()
	svc := NewService(store.Consents(), store.Users(), audit.NewService(store.AuditLogs(), metrics.NewNop()))
	pat := store.Users().Seed(&model.User{Email: "pat@example.com", FullName: "Pat", Role: model.RolePatient, IsActive: true})
	return svc, store, model.Actor{UserID: pat.ID, Role: model.RolePatient}
}

func TestCreate(t *testing.T) {
	svc, store, patient := setup(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, patient, patient.UserID, model.CreateConsentRequest{
		Scope: "research", Provision: model.ConsentPermit, Purpose: "Clinical trial",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Version)
	assert.Equal(t, model.ConsentStatusActive, c.Status)
	assert.True(t, c.ActiveAt(time.Now()))
	assert.Equal(t, []string{model.AuditActionCreate}, store.AuditActions())
	assert.Equal(t, []string{model.EventConsentChanged}, store.EventTypes())

	list, err := svc.List(ctx, patient, patient.UserID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreate_Rejects(t *testing.T) {
	svc, _, patient := setup(t)
	ctx := context.Background()
	doctor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	admin := model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}
	req := model.CreateConsentRequest{Scope: "treatment", Provision: model.ConsentDeny}

	_, err := svc.Create(ctx, doctor, patient.UserID, req)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = svc.Create(ctx, admin, uuid.New(), req)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err = svc.Create(ctx, patient, patient.UserID, model.CreateConsentRequest{
		Scope: "treatment", Provision: model.ConsentPermit, PeriodStart: &start, PeriodEnd: &end,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestList_OtherPatientForbidden(t *testing.T) {
	svc, _, patient := setup(t)
	_, err := svc.List(context.Background(), patient, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	list, err := svc.List(context.Background(), model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}, patient.UserID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdate(t *testing.T) {
	svc, store, patient := setup(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, patient, patient.UserID, model.CreateConsentRequest{Scope: "research", Provision: model.ConsentPermit})
	require.NoError(t, err)

	_, err = svc.Update(ctx, patient, patient.UserID, c.ID, model.ConsentUpdate{})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = svc.Update(ctx, patient, patient.UserID, uuid.New(), model.ConsentUpdate{Purpose: model.StrPtr("x")})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	inactive := model.ConsentStatusInactive
	updated, err := svc.Update(ctx, patient, patient.UserID, c.ID, model.ConsentUpdate{Status: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.False(t, updated.ActiveAt(time.Now()))

	last := store.Audits[len(store.Audits)-1]
	assert.Equal(t, model.AuditActionUpdate, last.Action)
	assert.Equal(t, "active", last.OldValues["status"])
	assert.Equal(t, "inactive", last.NewValues["status"])
	assert.Len(t, store.EventTypes(), 2)
}
