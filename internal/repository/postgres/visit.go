package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
)

const visitSelect = `
	SELECT
		v.id, v.patient_id, v.doctor_id, to_char(v.visit_date, 'YYYY-MM-DD') AS visit_date,
		v.chief_complaint, v.diagnosis, v.namaste_code, v.icd11_code, v.treatment_plan,
		v.prescription, v.notes, v.hospital_name,
		to_char(v.follow_up_date, 'YYYY-MM-DD') AS follow_up_date,
		v.status, v.version, v.created_at, v.updated_at,
		d.full_name AS doctor_name, d.email AS doctor_email,
		p.full_name AS patient_name, p.email AS patient_email,
		m.namaste_label, m.icd11_label, m.category, m.ayush_system
	FROM patient_visits v
	LEFT JOIN users d ON d.id = v.doctor_id
	LEFT JOIN users p ON p.id = v.patient_id
	LEFT JOIN namaste_icd11_mappings m ON m.namaste_code = v.namaste_code`

const dateLayout = "2006-01-02"

type visitRepository struct {
	BaseRepository
}

func NewVisitRepository(base BaseRepository) repository.VisitRepository {
	return &visitRepository{base}
}

func (r *visitRepository) Create(ctx context.Context, visit *model.PatientVisit, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return r.createTx(ctx, tx, visit, change)
	})
}

func (r *visitRepository) CreateWithPatient(ctx context.Context, patient *model.User, patientChange repository.Change, visit *model.PatientVisit, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if patient != nil {
			if err := insertUser(ctx, tx, patient); err != nil {
				return err
			}
			if err := r.writeChange(ctx, tx, patientChange); err != nil {
				return err
			}
		}
		return r.createTx(ctx, tx, visit, change)
	})
}

func (r *visitRepository) createTx(ctx context.Context, tx *sqlx.Tx, v *model.PatientVisit, change repository.Change) error {
	query := `
		INSERT INTO patient_visits (
			id, patient_id, doctor_id, visit_date, chief_complaint, diagnosis, namaste_code,
			icd11_code, treatment_plan, prescription, notes, hospital_name, follow_up_date,
			status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := tx.ExecContext(ctx, query,
		v.ID, v.PatientID, v.DoctorID, v.VisitDate, v.ChiefComplaint, v.Diagnosis, v.NamasteCode,
		v.ICD11Code, v.TreatmentPlan, v.Prescription, v.Notes, v.HospitalName, v.FollowUpDate,
		v.Status, v.Version, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}

	if err := insertVisitVersion(ctx, tx, v, model.AuditActionCreate, change); err != nil {
		return err
	}
	return r.writeChange(ctx, tx, change)
}

func insertVisitVersion(ctx context.Context, tx *sqlx.Tx, v *model.PatientVisit, changeType string, change repository.Change) error {
	snapshot, err := json.Marshal(v.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal visit snapshot: %w", err)
	}

	var changedBy *uuid.UUID
	if change.Audit != nil {
		changedBy = change.Audit.UserID
	}

	query := `
		INSERT INTO patient_visit_versions (id, visit_id, version, change_type, snapshot, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = tx.ExecContext(ctx, query, uuid.New(), v.ID, v.Version, changeType, snapshot, changedBy, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create visit version: %w", err)
	}
	return nil
}

func (r *visitRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PatientVisit, error) {
	var v model.PatientVisit
	if err := r.db.GetContext(ctx, &v, visitSelect+` WHERE v.id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to get visit: %w", notFound(err))
	}
	return &v, nil
}

func (r *visitRepository) List(ctx context.Context, filter model.VisitFilter) ([]*model.PatientVisit, int, error) {
	var w where
	if filter.PatientID != nil {
		w.add("v.patient_id = ?", *filter.PatientID)
	}
	if filter.DoctorID != nil {
		w.add("v.doctor_id = ?", *filter.DoctorID)
	}
	if filter.Status != "" {
		w.add("v.status = ?", filter.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM patient_visits v`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count visits: %w", err)
	}

	query := visitSelect + w.String() +
		fmt.Sprintf(" ORDER BY v.visit_date DESC, v.created_at DESC LIMIT %s OFFSET %s", w.next(filter.Limit), w.next(filter.Offset))

	visits := []*model.PatientVisit{}
	if err := r.db.SelectContext(ctx, &visits, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, total, nil
}

func (r *visitRepository) Update(ctx context.Context, v *model.PatientVisit, expectedVersion int, changeType string, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE patient_visits SET
				visit_date = $3, chief_complaint = $4, diagnosis = $5, namaste_code = $6,
				icd11_code = $7, treatment_plan = $8, prescription = $9, notes = $10,
				hospital_name = $11, follow_up_date = $12, status = $13,
				version = version + 1, updated_at = $14
			WHERE id = $1 AND version = $2`

		res, err := tx.ExecContext(ctx, query,
			v.ID, expectedVersion, v.VisitDate, v.ChiefComplaint, v.Diagnosis, v.NamasteCode,
			v.ICD11Code, v.TreatmentPlan, v.Prescription, v.Notes,
			v.HospitalName, v.FollowUpDate, v.Status, v.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update visit: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM patient_visits WHERE id = $1)`, v.ID); err != nil {
				return fmt.Errorf("failed to check visit: %w", err)
			}
			if !exists {
				return repository.ErrNotFound
			}
			return repository.ErrVersionConflict
		}

		v.Version = expectedVersion + 1
		if err := insertVisitVersion(ctx, tx, v, changeType, change); err != nil {
			return err
		}
		return r.writeChange(ctx, tx, change)
	})
}

func (r *visitRepository) ListVersions(ctx context.Context, visitID uuid.UUID) ([]*model.VisitVersion, error) {
	query := `
		SELECT id, visit_id, version, change_type, snapshot, changed_by, created_at
		FROM patient_visit_versions WHERE visit_id = $1 ORDER BY version DESC`

	versions := []*model.VisitVersion{}
	if err := r.db.SelectContext(ctx, &versions, query, visitID); err != nil {
		return nil, fmt.Errorf("failed to list visit versions: %w", err)
	}
	return versions, nil
}

func (r *visitRepository) GetVersion(ctx context.Context, visitID uuid.UUID, version int) (*model.VisitVersion, error) {
	query := `
		SELECT id, visit_id, version, change_type, snapshot, changed_by, created_at
		FROM patient_visit_versions WHERE visit_id = $1 AND version = $2`

	var vv model.VisitVersion
	if err := r.db.GetContext(ctx, &vv, query, visitID, version); err != nil {
		return nil, fmt.Errorf("failed to get visit version: %w", notFound(err))
	}
	return &vv, nil
}

func (r *visitRepository) Stats(ctx context.Context, doctorID *uuid.UUID, period model.DateRange) (*model.VisitStats, error) {
	var w where
	w.add("v.visit_date >= ?::date", period.From.Format(dateLayout))
	w.add("v.visit_date <= ?::date", period.To.Format(dateLayout))
	if doctorID != nil {
		w.add("v.doctor_id = ?", *doctorID)
	}

	var totals struct {
		Total     int `db:"total"`
		Completed int `db:"completed"`
		Draft     int `db:"draft"`
		Cancelled int `db:"cancelled"`
	}
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE v.status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE v.status = 'draft') AS draft,
			COUNT(*) FILTER (WHERE v.status = 'cancelled') AS cancelled
		FROM patient_visits v` + w.String()
	if err := r.db.GetContext(ctx, &totals, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to get visit totals: %w", err)
	}

	grouped := func(column string) ([]countRow, error) {
		q := fmt.Sprintf(`
			SELECT m.%[1]s AS key, COUNT(*) AS count
			FROM patient_visits v
			JOIN namaste_icd11_mappings m ON m.namaste_code = v.namaste_code%[2]s
			GROUP BY m.%[1]s`, column, w.String())
		rows := []countRow{}
		if err := r.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
			return nil, fmt.Errorf("failed to count visits by %s: %w", column, err)
		}
		return rows, nil
	}

	byCategory, err := grouped("category")
	if err != nil {
		return nil, err
	}
	bySystem, err := grouped("ayush_system")
	if err != nil {
		return nil, err
	}

	return &model.VisitStats{
		Total:         totals.Total,
		Completed:     totals.Completed,
		Draft:         totals.Draft,
		Cancelled:     totals.Cancelled,
		ByCategory:    countMap(byCategory, "Uncategorized"),
		ByAyushSystem: countMap(bySystem, "Unknown"),
		Period:        period,
	}, nil
}
