package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/model"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record was modified concurrently")
)

// Change carries the rows written in the same transaction as a mutation:
// its audit entry and the outbox events announcing it.
type Change struct {
	Audit  *model.AuditLog
	Events []*model.OutboxEvent
}

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User, change Change) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		List(ctx context.Context, filter model.UserFilter) ([]*model.User, int, error)
		Update(ctx context.Context, user *model.User, change Change) error
		TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
		Stats(ctx context.Context, now time.Time) (*model.UserStats, error)
		SearchActive(ctx context.Context, query string, role model.Role, limit int) ([]*model.UserSummary, error)
		GetActivePatientByEmail(ctx context.Context, email string) (*model.User, error)
	}

	CodeRepository interface {
		Create(ctx context.Context, mapping *model.CodeMapping, change Change) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.CodeMapping, error)
		GetActiveByNamasteCode(ctx context.Context, code string) (*model.CodeMapping, error)
		ExistsByNamasteCode(ctx context.Context, code string) (bool, error)
		Search(ctx context.Context, search model.CodeSearch) ([]*model.CodeMapping, error)
		List(ctx context.Context, filter model.CodeFilter) ([]*model.CodeMapping, int, error)
		Update(ctx context.Context, mapping *model.CodeMapping, change Change) error
		Categories(ctx context.Context) ([]string, error)
		AyushSystems(ctx context.Context) ([]string, error)
		Stats(ctx context.Context) (*model.CodeStats, error)
	}

	VisitRepository interface {
		// Create inserts the visit and its first version snapshot.
		Create(ctx context.Context, visit *model.PatientVisit, change Change) error
		// CreateWithPatient also inserts patient when it is not nil.
		CreateWithPatient(ctx context.Context, patient *model.User, patientChange Change, visit *model.PatientVisit, change Change) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.PatientVisit, error)
		List(ctx context.Context, filter model.VisitFilter) ([]*model.PatientVisit, int, error)
		// Update stores visit if the stored version equals expectedVersion,
		// bumping the version and writing a snapshot.
		Update(ctx context.Context, visit *model.PatientVisit, expectedVersion int, changeType string, change Change) error
		ListVersions(ctx context.Context, visitID uuid.UUID) ([]*model.VisitVersion, error)
		GetVersion(ctx context.Context, visitID uuid.UUID, version int) (*model.VisitVersion, error)
		Stats(ctx context.Context, doctorID *uuid.UUID, period model.DateRange) (*model.VisitStats, error)
	}

	ConsentRepository interface {
		Create(ctx context.Context, consent *model.Consent, change Change) error
		Get(ctx context.Context, patientID, id uuid.UUID) (*model.Consent, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Consent, error)
		Update(ctx context.Context, consent *model.Consent, expectedVersion int, change Change) error
	}

	AuditRepository interface {
		Create(ctx context.Context, entry *model.AuditLog) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.AuditLog, error)
		List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int, error)
		Stats(ctx context.Context, period model.DateRange) (*model.AuditStats, error)
		DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	}

	OutboxRepository interface {
		// Claim leases up to limit due events so concurrent workers skip them.
		Claim(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttempt time.Time, dead bool) error
	}

	EncounterRepository interface {
		Create(ctx context.Context, upload *model.EncounterUpload, change Change) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.EncounterUpload, error)
	}
)
