package encounter

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository/repotest"
	"github.com/codeveda/records-api/internal/service/audit"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/metrics"
	"github.com/codeveda/records-api/pkg/security"
)

const bundle = `{"resourceType":"Bundle","type":"collection","entry":[{"resource":{"resourceType":"Encounter"}},{"resource":{"resourceType":"Condition"}}]}`

func setup(t *testing.T) (*Service, *repotest.Store, security.Encryptor) {
	t.Helper()
	store := repotest.NewStore()
	enc, err := security.NewAESEncryptorFromSecret("test-encryption-secret")
	require.NoError(t, err)
	return NewService(store.Encounters(), enc, audit.NewService(store.AuditLogs(), metrics.NewNop())), store, enc
}

func TestUpload(t *testing.T) {
	svc, store, enc := setup(t)
	actor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}

	receipt, err := svc.Upload(context.Background(), actor, []byte(bundle))
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.EntryCount)
	assert.Equal(t, "collection", model.StrVal(receipt.BundleType))

	stored, err := store.Encounters().GetByID(context.Background(), receipt.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(stored.Payload), "Encounter")

	plain, err := enc.Decrypt(stored.Payload)
	require.NoError(t, err)
	assert.JSONEq(t, bundle, string(plain))

	assert.Equal(t, []string{model.AuditActionCreate}, store.AuditActions())
	assert.Equal(t, model.AuditResourceEncounter, store.Audits[0].ResourceType)
	assert.Equal(t, []string{model.EventEncounterReceived}, store.EventTypes())
}

func TestUpload_Rejects(t *testing.T) {
	svc, store, _ := setup(t)
	actor := model.Actor{UserID: uuid.New(), Role: model.RolePatient}

	_, err := svc.Upload(context.Background(), actor, []byte(`{"resourceType":"Patient"}`))
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = svc.Upload(context.Background(), actor, []byte(`not json`))
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	store.FailWrites = errors.New("db down")
	_, err = svc.Upload(context.Background(), actor, []byte(bundle))
	assert.EqualError(t, err, "db down")
	assert.Empty(t, store.AuditActions())
}
