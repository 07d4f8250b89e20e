package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
)

const codeColumns = `id, namaste_code, namaste_label, namaste_description, icd11_code, icd11_label,
	icd11_description, category, ayush_system, confidence_score, is_active, created_by,
	created_at, updated_at`

type codeRepository struct {
	BaseRepository
}

func NewCodeRepository(base BaseRepository) repository.CodeRepository {
	return &codeRepository{base}
}

func (r *codeRepository) Create(ctx context.Context, m *model.CodeMapping, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO namaste_icd11_mappings (
				id, namaste_code, namaste_label, namaste_description, icd11_code, icd11_label,
				icd11_description, category, ayush_system, confidence_score, is_active,
				created_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

		_, err := tx.ExecContext(ctx, query,
			m.ID, m.NamasteCode, m.NamasteLabel, m.NamasteDescription, m.ICD11Code, m.ICD11Label,
			m.ICD11Description, m.Category, m.AyushSystem, m.ConfidenceScore, m.IsActive,
			m.CreatedBy, m.CreatedAt, m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create code mapping: %w", err)
		}
		return r.writeChange(ctx, tx, change)
	})
}

func (r *codeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.CodeMapping, error) {
	var m model.CodeMapping
	query := `SELECT ` + codeColumns + ` FROM namaste_icd11_mappings WHERE id = $1`
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		return nil, fmt.Errorf("failed to get code mapping: %w", notFound(err))
	}
	return &m, nil
}

func (r *codeRepository) GetActiveByNamasteCode(ctx context.Context, code string) (*model.CodeMapping, error) {
	var m model.CodeMapping
	query := `SELECT ` + codeColumns + ` FROM namaste_icd11_mappings WHERE namaste_code = $1 AND is_active = true`
	if err := r.db.GetContext(ctx, &m, query, code); err != nil {
		return nil, fmt.Errorf("failed to get code mapping by namaste code: %w", notFound(err))
	}
	return &m, nil
}

func (r *codeRepository) ExistsByNamasteCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM namaste_icd11_mappings WHERE namaste_code = $1)`
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		return false, fmt.Errorf("failed to check namaste code: %w", err)
	}
	return exists, nil
}

func (r *codeRepository) Search(ctx context.Context, s model.CodeSearch) ([]*model.CodeMapping, error) {
	var w where
	w.add("is_active = true")
	if q := strings.TrimSpace(s.Query); q != "" {
		p := likePattern(q)
		w.add("(namaste_code ILIKE ? OR namaste_label ILIKE ? OR icd11_code ILIKE ? OR icd11_label ILIKE ?)", p, p, p, p)
	}
	if s.Category != "" {
		w.add("category = ?", s.Category)
	}
	if s.AyushSystem != "" {
		w.add("ayush_system = ?", s.AyushSystem)
	}

	query := `SELECT ` + codeColumns + ` FROM namaste_icd11_mappings` + w.String() +
		" ORDER BY confidence_score DESC, namaste_code LIMIT " + w.next(s.Limit)

	results := []*model.CodeMapping{}
	if err := r.db.SelectContext(ctx, &results, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to search code mappings: %w", err)
	}
	return results, nil
}

func (r *codeRepository) List(ctx context.Context, filter model.CodeFilter) ([]*model.CodeMapping, int, error) {
	var w where
	w.add("is_active = true")
	if filter.Category != "" {
		w.add("category = ?", filter.Category)
	}
	if filter.AyushSystem != "" {
		w.add("ayush_system = ?", filter.AyushSystem)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM namaste_icd11_mappings`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count code mappings: %w", err)
	}

	query := `SELECT ` + codeColumns + ` FROM namaste_icd11_mappings` + w.String() +
		fmt.Sprintf(" ORDER BY confidence_score DESC, namaste_code LIMIT %s OFFSET %s", w.next(filter.Limit), w.next(filter.Offset))

	mappings := []*model.CodeMapping{}
	if err := r.db.SelectContext(ctx, &mappings, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list code mappings: %w", err)
	}
	return mappings, total, nil
}

func (r *codeRepository) Update(ctx context.Context, m *model.CodeMapping, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE namaste_icd11_mappings SET
				namaste_label = $2, namaste_description = $3, icd11_code = $4, icd11_label = $5,
				icd11_description = $6, category = $7, ayush_system = $8, confidence_score = $9,
				is_active = $10, updated_at = $11
			WHERE id = $1`

		res, err := tx.ExecContext(ctx, query,
			m.ID, m.NamasteLabel, m.NamasteDescription, m.ICD11Code, m.ICD11Label,
			m.ICD11Description, m.Category, m.AyushSystem, m.ConfidenceScore,
			m.IsActive, m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update code mapping: %w", err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		return r.writeChange(ctx, tx, change)
	})
}

func (r *codeRepository) distinct(ctx context.Context, column string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT %[1]s FROM namaste_icd11_mappings
		WHERE is_active = true AND %[1]s IS NOT NULL AND %[1]s <> ''
		ORDER BY %[1]s`, column)

	values := []string{}
	if err := r.db.SelectContext(ctx, &values, query); err != nil {
		return nil, fmt.Errorf("failed to list distinct %s: %w", column, err)
	}
	return values, nil
}

func (r *codeRepository) Categories(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "category")
}

func (r *codeRepository) AyushSystems(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "ayush_system")
}

func (r *codeRepository) Stats(ctx context.Context) (*model.CodeStats, error) {
	var totals struct {
		Total  int `db:"total"`
		Active int `db:"active"`
		model.ConfidenceDistribution
	}
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE is_active) AS active,
			COUNT(*) FILTER (WHERE is_active AND confidence_score >= 0.9) AS high,
			COUNT(*) FILTER (WHERE is_active AND confidence_score >= 0.7 AND confidence_score < 0.9) AS medium,
			COUNT(*) FILTER (WHERE is_active AND confidence_score < 0.7) AS low
		FROM namaste_icd11_mappings`
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("failed to get code mapping totals: %w", err)
	}

	var byCategory, bySystem []countRow
	if err := r.db.SelectContext(ctx, &byCategory, `
		SELECT category AS key, COUNT(*) AS count FROM namaste_icd11_mappings
		WHERE is_active = true GROUP BY category`); err != nil {
		return nil, fmt.Errorf("failed to count code mappings by category: %w", err)
	}
	if err := r.db.SelectContext(ctx, &bySystem, `
		SELECT ayush_system AS key, COUNT(*) AS count FROM namaste_icd11_mappings
		WHERE is_active = true GROUP BY ayush_system`); err != nil {
		return nil, fmt.Errorf("failed to count code mappings by ayush system: %w", err)
	}

	return &model.CodeStats{
		Total:                  totals.Total,
		Active:                 totals.Active,
		Inactive:               totals.Total - totals.Active,
		ByCategory:             countMap(byCategory, "Uncategorized"),
		ByAyushSystem:          countMap(bySystem, "Unknown"),
		ConfidenceDistribution: totals.ConfidenceDistribution,
	}, nil
}
