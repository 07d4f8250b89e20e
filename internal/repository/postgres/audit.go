package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
)

const auditSelect = `
	SELECT
		a.id, a.user_id, a.action, a.resource_type, a.resource_id, a.old_values,
		a.new_values, a.ip_address, a.user_agent, a.created_at,
		u.email AS user_email, u.full_name AS user_name, u.role AS user_role
	FROM audit_logs a
	LEFT JOIN users u ON u.id = a.user_id`

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return insertAuditLog(ctx, r.db, entry)
}

func (r *auditRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AuditLog, error) {
	var entry model.AuditLog
	if err := r.db.GetContext(ctx, &entry, auditSelect+` WHERE a.id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", notFound(err))
	}
	return &entry, nil
}

func auditWhere(filter model.AuditFilter) *where {
	w := &where{}
	if filter.UserID != nil {
		w.add("a.user_id = ?", *filter.UserID)
	}
	if filter.Action != "" {
		w.add("a.action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		w.add("a.resource_type = ?", filter.ResourceType)
	}
	if filter.From != nil {
		w.add("a.created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		w.add("a.created_at <= ?", *filter.To)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		p := likePattern(s)
		w.add("(a.action ILIKE ? OR a.resource_type ILIKE ? OR a.ip_address ILIKE ? OR a.user_agent ILIKE ? OR u.email ILIKE ?)",
			p, p, p, p, p)
	}
	return w
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int, error) {
	w := auditWhere(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id` + w.String()
	if err := r.db.GetContext(ctx, &total, countQuery, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query := auditSelect + w.String() +
		fmt.Sprintf(" ORDER BY a.created_at DESC LIMIT %s OFFSET %s", w.next(filter.Limit), w.next(filter.Offset))

	logs := []*model.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}

func (r *auditRepository) Stats(ctx context.Context, period model.DateRange) (*model.AuditStats, error) {
	var w where
	if !period.From.IsZero() {
		w.add("a.created_at >= ?", period.From)
	}
	if !period.To.IsZero() {
		w.add("a.created_at <= ?", period.To)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs a`+w.String(), w.args...); err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	grouped := func(expr, name string) (map[string]int, error) {
		q := fmt.Sprintf(`
			SELECT %s AS key, COUNT(*) AS count
			FROM audit_logs a
			LEFT JOIN users u ON u.id = a.user_id%s
			GROUP BY 1`, expr, w.String())
		rows := []countRow{}
		if err := r.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
			return nil, fmt.Errorf("failed to count audit logs by %s: %w", name, err)
		}
		return countMap(rows, "unknown"), nil
	}

	byAction, err := grouped("a.action", "action")
	if err != nil {
		return nil, err
	}
	byResource, err := grouped("a.resource_type", "resource type")
	if err != nil {
		return nil, err
	}
	byRole, err := grouped("u.role", "user role")
	if err != nil {
		return nil, err
	}

	timeline := []model.TimelinePoint{}
	timelineQuery := `
		SELECT to_char(date_trunc('day', a.created_at), 'YYYY-MM-DD') AS day, COUNT(*) AS count
		FROM audit_logs a` + w.String() + `
		GROUP BY 1 ORDER BY 1`
	if err := r.db.SelectContext(ctx, &timeline, timelineQuery, w.args...); err != nil {
		return nil, fmt.Errorf("failed to build audit timeline: %w", err)
	}

	return &model.AuditStats{
		TotalActions:   total,
		ByAction:       byAction,
		ByResourceType: byResource,
		ByUserRole:     byRole,
		Timeline:       timeline,
		Period:         period,
	}, nil
}

func (r *auditRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	return result.RowsAffected()
}
