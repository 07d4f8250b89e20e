package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
)

const consentColumns = `id, patient_id, scope, provision, purpose, grantee_id, period_start,
	period_end, status, version, recorded_by, created_at, updated_at`

type consentRepository struct {
	BaseRepository
}

func NewConsentRepository(base BaseRepository) repository.ConsentRepository {
	return &consentRepository{base}
}

func (r *consentRepository) Create(ctx context.Context, c *model.Consent, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO patient_consents (` + consentColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

		_, err := tx.ExecContext(ctx, query,
			c.ID, c.PatientID, c.Scope, c.Provision, c.Purpose, c.GranteeID, c.PeriodStart,
			c.PeriodEnd, c.Status, c.Version, c.RecordedBy, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create consent: %w", err)
		}
		return r.writeChange(ctx, tx, change)
	})
}

func (r *consentRepository) Get(ctx context.Context, patientID, id uuid.UUID) (*model.Consent, error) {
	var c model.Consent
	query := `SELECT ` + consentColumns + ` FROM patient_consents WHERE id = $1 AND patient_id = $2`
	if err := r.db.GetContext(ctx, &c, query, id, patientID); err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", notFound(err))
	}
	return &c, nil
}

func (r *consentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM patient_consents WHERE patient_id = $1 ORDER BY created_at DESC`

	consents := []*model.Consent{}
	if err := r.db.SelectContext(ctx, &consents, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	return consents, nil
}

func (r *consentRepository) Update(ctx context.Context, c *model.Consent, expectedVersion int, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE patient_consents SET
				provision = $3, purpose = $4, period_start = $5, period_end = $6,
				status = $7, version = version + 1, updated_at = $8
			WHERE id = $1 AND version = $2`

		res, err := tx.ExecContext(ctx, query,
			c.ID, expectedVersion, c.Provision, c.Purpose, c.PeriodStart, c.PeriodEnd,
			c.Status, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update consent: %w", err)
		}
		if err := expectOne(res); err != nil {
			return repository.ErrVersionConflict
		}

		c.Version = expectedVersion + 1
		return r.writeChange(ctx, tx, change)
	})
}
