package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMapScanValue(t *testing.T) {
	m := JSONMap{"diagnosis": "Vata imbalance"}
	v, err := m.Value()
	require.NoError(t, err)

	var out JSONMap
	require.NoError(t, out.Scan(v))
	assert.Equal(t, "Vata imbalance", out["diagnosis"])

	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out)
	assert.Error(t, out.Scan(42))

	v, err = JSONMap(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestNewAuditLog(t *testing.T) {
	actor := Actor{UserID: uuid.New(), IPAddress: "10.0.0.1"}
	entry := NewAuditLog(actor, AuditActionUpdate, AuditResourceUser, "abc", nil, UserUpdate{FullName: StrPtr("Asha")})

	require.NotNil(t, entry.UserID)
	assert.Equal(t, actor.UserID, *entry.UserID)
	assert.Nil(t, entry.OldValues)
	assert.Equal(t, "Asha", entry.NewValues["fullName"])
	assert.Nil(t, entry.UserAgent)

	anon := NewAuditLog(Actor{}, AuditActionLogin, AuditResourceUser, "", nil, JSONMap{"success": false})
	assert.Nil(t, anon.UserID)
	assert.Nil(t, anon.ResourceID)
}

func TestAuditDateRangeSince(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Nil(t, AuditRangeAll.Since(now))
	assert.Equal(t, now.Add(-24*time.Hour), *AuditRangeDay.Since(now))
	assert.Equal(t, now.Add(-7*24*time.Hour), *AuditDateRange("").Since(now))
	assert.Equal(t, now.Add(-90*24*time.Hour), *AuditRangeQuarter.Since(now))
}

func TestVisitUpdateIsEmpty(t *testing.T) {
	v := 3
	assert.True(t, VisitUpdate{}.IsEmpty())
	assert.True(t, VisitUpdate{Version: &v}.IsEmpty())
	assert.False(t, VisitUpdate{NamasteCode: StrPtr("x")}.IsEmpty())
}

func TestVisitToFHIR(t *testing.T) {
	visit := &PatientVisit{
		ID:           uuid.New(),
		PatientID:    uuid.New(),
		DoctorID:     uuid.New(),
		VisitDate:    "2024-03-01",
		Diagnosis:    "Amavata",
		NamasteCode:  StrPtr("AAA-1"),
		ICD11Code:    StrPtr("FA20"),
		ICD11Label:   StrPtr("Rheumatoid arthritis"),
		Status:       VisitStatusCompleted,
		Version:      2,
		NamasteLabel: StrPtr("Amavata"),
	}

	bundle := visit.ToFHIR()
	require.Len(t, bundle.Entry, 2)

	raw, err := json.Marshal(bundle)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"status":"finished"`)
	assert.Contains(t, body, NamasteSystem)
	assert.Contains(t, body, `"code":"FA20"`)
	assert.Contains(t, body, `"versionId":"2"`)
}

func TestAuditLogToFHIR(t *testing.T) {
	entry := NewAuditLog(Actor{}, AuditActionLogin, AuditResourceUser, "", nil, JSONMap{"success": false})
	event := entry.ToFHIR()
	assert.Equal(t, "E", event["action"])
	assert.Equal(t, "4", event["outcome"])

	entry = NewAuditLog(Actor{UserID: uuid.New()}, AuditActionDelete, AuditResourceVisit, "v1", nil, nil)
	event = entry.ToFHIR()
	assert.Equal(t, "D", event["action"])
	assert.Equal(t, "0", event["outcome"])
}

func TestConsentActiveAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	c := Consent{Status: ConsentStatusActive, PeriodStart: &past, PeriodEnd: &future}
	assert.True(t, c.ActiveAt(now))
	assert.False(t, c.ActiveAt(future.Add(time.Minute)))

	c.Status = ConsentStatusInactive
	assert.False(t, c.ActiveAt(now))
}
