package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
)

type encounterRepository struct {
	BaseRepository
}

func NewEncounterRepository(base BaseRepository) repository.EncounterRepository {
	return &encounterRepository{base}
}

func (r *encounterRepository) Create(ctx context.Context, upload *model.EncounterUpload, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO encounter_uploads (
				id, uploaded_by, resource_type, bundle_type, entry_count, payload, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`

		_, err := tx.ExecContext(ctx, query,
			upload.ID, upload.UploadedBy, upload.ResourceType, upload.BundleType,
			upload.EntryCount, upload.Payload, upload.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store encounter upload: %w", err)
		}
		return r.writeChange(ctx, tx, change)
	})
}

func (r *encounterRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.EncounterUpload, error) {
	var upload model.EncounterUpload
	query := `
		SELECT id, uploaded_by, resource_type, bundle_type, entry_count, payload, created_at
		FROM encounter_uploads WHERE id = $1`
	if err := r.db.GetContext(ctx, &upload, query, id); err != nil {
		return nil, fmt.Errorf("failed to get encounter upload: %w", notFound(err))
	}
	return &upload, nil
}
