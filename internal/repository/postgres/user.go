package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
)

const userColumns = `id, email, password_hash, full_name, role, phone, license_number,
	organization, is_active, last_login_at, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func insertUser(ctx context.Context, ext sqlx.ExtContext, user *model.User) error {
	query := `
		INSERT INTO users (
			id, email, password_hash, full_name, role, phone, license_number,
			organization, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := ext.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FullName, user.Role, user.Phone,
		user.LicenseNumber, user.Organization, user.IsActive, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		return r.writeChange(ctx, tx, change)
	})
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", notFound(err))
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", notFound(err))
	}
	return &user, nil
}

func (r *userRepository) GetActivePatientByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users
		WHERE lower(email) = lower($1) AND role = 'patient' AND is_active = true`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, fmt.Errorf("failed to get patient by email: %w", notFound(err))
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, filter model.UserFilter) ([]*model.User, int, error) {
	var w where
	if filter.Role != "" {
		w.add("role = ?", filter.Role)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		p := likePattern(s)
		w.add("(full_name ILIKE ? OR email ILIKE ?)", p, p)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + w.String() +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %s OFFSET %s", w.next(filter.Limit), w.next(filter.Offset))

	users := []*model.User{}
	if err := r.db.SelectContext(ctx, &users, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User, change repository.Change) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE users SET
				full_name = $2, role = $3, phone = $4, license_number = $5,
				organization = $6, is_active = $7, updated_at = $8
			WHERE id = $1`

		res, err := tx.ExecContext(ctx, query,
			user.ID, user.FullName, user.Role, user.Phone, user.LicenseNumber,
			user.Organization, user.IsActive, user.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		return r.writeChange(ctx, tx, change)
	})
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (r *userRepository) Stats(ctx context.Context, now time.Time) (*model.UserStats, error) {
	var totals struct {
		Total  int `db:"total"`
		Active int `db:"active"`
		Last7  int `db:"last_7"`
		Last30 int `db:"last_30"`
	}
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE is_active) AS active,
			COUNT(*) FILTER (WHERE created_at >= $1) AS last_7,
			COUNT(*) FILTER (WHERE created_at >= $2) AS last_30
		FROM users`
	if err := r.db.GetContext(ctx, &totals, query, now.AddDate(0, 0, -7), now.AddDate(0, 0, -30)); err != nil {
		return nil, fmt.Errorf("failed to get user totals: %w", err)
	}

	var byRole []countRow
	if err := r.db.SelectContext(ctx, &byRole, `SELECT role AS key, COUNT(*) AS count FROM users GROUP BY role`); err != nil {
		return nil, fmt.Errorf("failed to count users by role: %w", err)
	}

	return &model.UserStats{
		Total:    totals.Total,
		Active:   totals.Active,
		Inactive: totals.Total - totals.Active,
		ByRole:   countMap(byRole, "unknown"),
		RecentRegistrations: model.RecentRegistrations{
			Last7Days:  totals.Last7,
			Last30Days: totals.Last30,
		},
	}, nil
}

func (r *userRepository) SearchActive(ctx context.Context, query string, role model.Role, limit int) ([]*model.UserSummary, error) {
	var w where
	w.add("is_active = true")
	p := likePattern(query)
	w.add("(full_name ILIKE ? OR email ILIKE ?)", p, p)
	if role != "" {
		w.add("role = ?", role)
	}

	sqlQuery := `SELECT id, full_name, email, role FROM users` + w.String() +
		" ORDER BY full_name LIMIT " + w.next(limit)

	users := []*model.UserSummary{}
	if err := r.db.SelectContext(ctx, &users, sqlQuery, w.args...); err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}
