package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository/repotest"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/metrics"
)

var actor = model.Actor{UserID: uuid.New(), Role: model.RoleAdmin, IPAddress: "10.0.0.1"}

func TestRecord(t *testing.T) {
	store := repotest.NewStore()
	m := metrics.NewNop()
	svc := NewService(store.AuditLogs(), m)

	svc.Record(context.Background(), model.NewAuditLog(actor, model.AuditActionRead, model.AuditResourceVisit, "v1", nil, nil))
	svc.Record(context.Background(), nil)

	assert.Equal(t, []string{model.AuditActionRead}, store.AuditActions())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditEntries.WithLabelValues(model.AuditActionRead, model.AuditResourceVisit)))
}

func TestRecordSwallowsWriteErrors(t *testing.T) {
	store := repotest.NewStore()
	store.FailWrites = errors.New("db down")
	m := metrics.NewNop()
	svc := NewService(store.AuditLogs(), m)

	svc.Record(context.Background(), model.NewAuditLog(actor, model.AuditActionRead, model.AuditResourceVisit, "v1", nil, nil))
	assert.Empty(t, store.Audits)
	assert.Zero(t, testutil.ToFloat64(m.AuditEntries.WithLabelValues(model.AuditActionRead, model.AuditResourceVisit)))
}

func TestGet(t *testing.T) {
	store := repotest.NewStore()
	svc := NewService(store.AuditLogs(), metrics.NewNop())
	entry := model.NewAuditLog(actor, model.AuditActionCreate, model.AuditResourceUser, "u1", nil, nil)
	svc.Record(context.Background(), entry)

	got, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)

	_, err = svc.Get(context.Background(), uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc := NewService(repotest.NewStore().AuditLogs(), metrics.NewNop())
	from := time.Now()
	to := from.Add(-time.Hour)

	_, _, err := svc.List(context.Background(), model.AuditFilter{From: &from, To: &to})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestStatsDefaultsToThirtyDays(t *testing.T) {
	store := repotest.NewStore()
	svc := NewService(store.AuditLogs(), metrics.NewNop())
	svc.Record(context.Background(), model.NewAuditLog(actor, model.AuditActionLogin, model.AuditResourceUser, "", nil, nil))
	old := model.NewAuditLog(actor, model.AuditActionLogin, model.AuditResourceUser, "", nil, nil)
	old.CreatedAt = time.Now().AddDate(0, 0, -45)
	svc.Record(context.Background(), old)

	stats, err := svc.Stats(context.Background(), model.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalActions)
	assert.Equal(t, 1, stats.ByAction[model.AuditActionLogin])
	assert.InDelta(t, 30*24, stats.Period.To.Sub(stats.Period.From).Hours(), 0.01)

	_, err = svc.Stats(context.Background(), model.DateRange{From: time.Now(), To: time.Now().Add(-time.Hour)})
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}
