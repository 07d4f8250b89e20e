package visit

import (
	"context"
	"strings"
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

type fixture struct {
	svc     *Service
	store   *repotest.Store
	doctor  model.Actor
	other   model.Actor
	admin   model.Actor
	patient model.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore()
	svc := NewService(store.Visits(), store.Users(), store.Codes(), audit.NewService(store.AuditLogs(), metrics.NewNop()))

	users := store.Users()
	doc := users.Seed(&model.User{Email: "doc@example.com", FullName: "Dr. Rao", Role: model.RoleDoctor, IsActive: true})
	other := users.Seed(&model.User{Email: "other@example.com", FullName: "Dr. Iyer", Role: model.RoleDoctor, IsActive: true})
	adm := users.Seed(&model.User{Email: "admin@example.com", FullName: "Admin", Role: model.RoleAdmin, IsActive: true})
	pat := users.Seed(&model.User{Email: "pat@example.com", FullName: "Pat", Role: model.RolePatient, IsActive: true})

	store.Codes().Seed(&model.CodeMapping{
		NamasteCode: "NAM-001", NamasteLabel: "Kati Shoola", ICD11Code: "ME84.2", ICD11Label: "Low back pain",
		Category: model.StrPtr("Musculoskeletal"), AyushSystem: model.StrPtr("Ayurveda"), ConfidenceScore: 0.9, IsActive: true,
	})

	return &fixture{
		svc:     svc,
		store:   store,
		doctor:  model.Actor{UserID: doc.ID, Role: model.RoleDoctor},
		other:   model.Actor{UserID: other.ID, Role: model.RoleDoctor},
		admin:   model.Actor{UserID: adm.ID, Role: model.RoleAdmin},
		patient: model.Actor{UserID: pat.ID, Role: model.RolePatient},
	}
}

func (f *fixture) create(t *testing.T) *model.PatientVisit {
	t.Helper()
	v, err := f.svc.Create(context.Background(), f.doctor, model.CreateVisitRequest{
		PatientID: f.patient.UserID.String(), Diagnosis: "Lower back pain", NamasteCode: "NAM-001",
	})
	require.NoError(t, err)
	return v
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)

	assert.Equal(t, 1, v.Version)
	assert.Equal(t, model.VisitStatusCompleted, v.Status)
	assert.Equal(t, time.Now().UTC().Format(dateLayout), v.VisitDate)
	assert.Equal(t, "ME84.2", model.StrVal(v.ICD11Code))
	assert.Equal(t, "Dr. Rao", model.StrVal(v.DoctorName))
	assert.Equal(t, "Kati Shoola", model.StrVal(v.NamasteLabel))

	assert.Equal(t, []string{model.AuditActionCreate}, f.store.AuditActions())
	assert.Equal(t, []string{model.EventVisitCreated}, f.store.EventTypes())

	history, err := f.svc.History(context.Background(), f.doctor, v.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "create", history[0].ChangeType)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.doctor, model.CreateVisitRequest{PatientID: f.patient.UserID.String(), Diagnosis: "x", NamasteCode: "NAM-999"})
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "Invalid NAMASTE code", appErr.Message)

	_, err = f.svc.Create(ctx, f.doctor, model.CreateVisitRequest{PatientID: f.other.UserID.String(), Diagnosis: "x"})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest), "target must be a patient")

	_, err = f.svc.Create(ctx, f.doctor, model.CreateVisitRequest{PatientID: uuid.NewString(), Diagnosis: "x"})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = f.svc.Create(ctx, f.patient, model.CreateVisitRequest{PatientID: f.patient.UserID.String(), Diagnosis: "x"})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	_, err = f.svc.Create(ctx, f.doctor, model.CreateVisitRequest{
		PatientID: f.patient.UserID.String(), Diagnosis: "x", Status: model.VisitStatusCancelled,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest), "new visits cannot start cancelled")

	assert.Empty(t, f.store.AuditActions())
}

func TestAccessScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t)

	_, err := f.svc.Get(ctx, f.patient, v.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, f.admin, v.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, f.other, v.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	_, err = f.svc.Get(ctx, f.admin, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	list, total, err := f.svc.List(ctx, f.other, model.VisitFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, list)

	_, total, err = f.svc.List(ctx, f.patient, model.VisitFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	someoneElse := uuid.New()
	_, _, err = f.svc.List(ctx, f.patient, model.VisitFilter{PatientID: &someoneElse})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t)

	_, err := f.svc.Update(ctx, f.doctor, v.ID, model.VisitUpdate{})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	notes := "Improving"
	_, err = f.svc.Update(ctx, f.other, v.ID, model.VisitUpdate{Notes: &notes})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	version := 1
	updated, err := f.svc.Update(ctx, f.doctor, v.ID, model.VisitUpdate{Notes: &notes, Version: &version})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Improving", model.StrVal(updated.Notes))

	// stale version
	_, err = f.svc.Update(ctx, f.doctor, v.ID, model.VisitUpdate{Notes: &notes, Version: &version})
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	none := ""
	updated, err = f.svc.Update(ctx, f.admin, v.ID, model.VisitUpdate{NamasteCode: &none})
	require.NoError(t, err)
	assert.Nil(t, updated.NamasteCode)
	assert.Nil(t, updated.ICD11Code)
	assert.Equal(t, 3, updated.Version)

	last := f.store.Audits[len(f.store.Audits)-1]
	assert.Equal(t, "NAM-001", last.OldValues["namaste_code"])
	assert.Nil(t, last.NewValues["namaste_code"])

	snap, err := f.svc.Version(ctx, f.doctor, v.ID, 2)
	require.NoError(t, err)
	assert.Contains(t, string(snap.Snapshot), "Improving")

	_, err = f.svc.Version(ctx, f.doctor, v.ID, 9)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestUpdate_CancelEmitsCancelled(t *testing.T) {
	f := newFixture(t)
	v := f.create(t)

	status := model.VisitStatusCancelled
	_, err := f.svc.Update(context.Background(), f.doctor, v.ID, model.VisitUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, []string{model.EventVisitCreated, model.EventVisitCancelled}, f.store.EventTypes())
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t)

	assert.True(t, apperrors.Is(f.svc.Cancel(ctx, f.patient, v.ID), apperrors.ErrForbidden))
	require.NoError(t, f.svc.Cancel(ctx, f.doctor, v.ID))

	got, err := f.svc.Get(ctx, f.doctor, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusCancelled, got.Status)
	assert.Equal(t, []string{model.AuditActionCreate, model.AuditActionDelete}, f.store.AuditActions())

	history, err := f.svc.History(ctx, f.patient, v.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "delete", history[0].ChangeType)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t)

	stats, err := f.svc.Stats(ctx, f.doctor, model.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByCategory["Musculoskeletal"])

	stats, err = f.svc.Stats(ctx, f.other, model.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)

	_, err = f.svc.Stats(ctx, f.patient, model.DateRange{})
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	now := time.Now()
	_, err = f.svc.Stats(ctx, f.admin, model.DateRange{From: now, To: now.AddDate(0, 0, -1)})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestProvision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Provision(ctx, f.doctor, model.ProvisionVisitRequest{
		PatientName: "Pat", PatientEmail: "PAT@example.com", Diagnosis: "Fever",
	})
	require.NoError(t, err)
	assert.False(t, res.PatientCreated)
	assert.Equal(t, f.patient.UserID, res.PatientID)

	res, err = f.svc.Provision(ctx, f.doctor, model.ProvisionVisitRequest{PatientName: "Walk In", Diagnosis: "Fever"})
	require.NoError(t, err)
	assert.True(t, res.PatientCreated)

	created, err := f.store.Users().GetByID(ctx, res.PatientID)
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, created.Role)
	assert.True(t, strings.HasPrefix(created.Email, "temp_patient_"))
	assert.True(t, strings.HasSuffix(created.Email, "@external.local"))
	assert.Empty(t, created.PasswordHash)

	assert.Equal(t, []string{
		model.EventVisitCreated,
		model.EventPatientProvisioned,
		model.EventVisitCreated,
	}, f.store.EventTypes())
}
