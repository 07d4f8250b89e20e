package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// writeChange stores the audit entry and outbox events of a mutation on tx.
func (r *BaseRepository) writeChange(ctx context.Context, tx *sqlx.Tx, change repository.Change) error {
	if change.Audit != nil {
		if err := insertAuditLog(ctx, tx, change.Audit); err != nil {
			return err
		}
	}
	for _, evt := range change.Events {
		if err := insertOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
	}
	return nil
}

func insertAuditLog(ctx context.Context, ext sqlx.ExtContext, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource_type, resource_id,
			old_values, new_values, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := ext.ExecContext(ctx, query,
		log.ID, log.UserID, log.Action, log.ResourceType, log.ResourceID,
		log.OldValues, log.NewValues, log.IPAddress, log.UserAgent, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func insertOutboxEvent(ctx context.Context, ext sqlx.ExtContext, evt *model.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			id, event_type, aggregate_type, aggregate_id, payload,
			status, attempts, next_attempt_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := ext.ExecContext(ctx, query,
		evt.ID, evt.EventType, evt.AggregateType, evt.AggregateID, []byte(evt.Payload),
		evt.Status, evt.Attempts, evt.NextAttemptAt, evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// notFound converts sql.ErrNoRows into repository.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// expectOne turns a zero-row write into repository.ErrNotFound.
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// likePattern escapes LIKE wildcards in s and wraps it for a contains match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// where accumulates AND conditions with positional arguments.
type where struct {
	clauses []string
	args    []interface{}
}

// add appends a condition; each "?" in cond becomes the next $n placeholder.
func (w *where) add(cond string, args ...interface{}) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.clauses = append(w.clauses, cond)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// next returns the placeholder for one more argument.
func (w *where) next(arg interface{}) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

type countRow struct {
	Key   sql.NullString `db:"key"`
	Count int            `db:"count"`
}

// countMap folds grouped counts into a map, naming NULL keys with fallback.
func countMap(rows []countRow, fallback string) map[string]int {
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		key := fallback
		if row.Key.Valid && row.Key.String != "" {
			key = row.Key.String
		}
		out[key] += row.Count
	}
	return out
}
