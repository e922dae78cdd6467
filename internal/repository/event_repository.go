package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/visibility"
)

const eventColumns = `id, title, description, start_at, end_at, location, event_type, created_by, created_by_role,
target_class, target_user, teacher_id, visibility_scope, metadata, is_deleted, is_recurring, repeat_until, series_id,
created_at, updated_at`

const (
	defaultEventPageSize = 50
	maxEventPageSize     = 500
)

// EventRepository persists calendar events and broadcasts.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs an event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns the events selected by pred and filter, ordered by start time, with the total
// number of matching rows.
func (r *EventRepository) List(ctx context.Context, pred visibility.Predicate, filter models.EventFilter) ([]models.Event, int, error) {
	where, args := predicateClause(pred)
	if filter.From != nil {
		where = append(where, fmt.Sprintf("end_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("start_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		where = append(where, fmt.Sprintf("event_type = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(types))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = defaultEventPageSize
	}
	if size > maxEventPageSize {
		size = maxEventPageSize
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM events WHERE %s ORDER BY start_at ASC, id ASC LIMIT %d OFFSET %d",
		eventColumns, whereClause, size, offset)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM events WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// predicateClause renders a visibility predicate as SQL conditions joined by AND.
func predicateClause(pred visibility.Predicate) ([]string, []interface{}) {
	where := []string{"is_deleted = FALSE"}
	args := []interface{}{}
	if pred.ScopeHint != "" {
		where = append(where, fmt.Sprintf("visibility_scope = $%d", len(args)+1))
		args = append(args, string(pred.ScopeHint))
	}
	if pred.Unrestricted {
		return where, args
	}

	var anyOf []string
	if pred.CreatedBy != "" {
		anyOf = append(anyOf, fmt.Sprintf("created_by = $%d", len(args)+1))
		args = append(args, pred.CreatedBy)
	}
	if len(pred.OpenScopes) > 0 {
		scopes := make([]string, len(pred.OpenScopes))
		for i, s := range pred.OpenScopes {
			scopes[i] = string(s)
		}
		anyOf = append(anyOf, fmt.Sprintf("visibility_scope = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(scopes))
	}
	if pred.Class != nil && len(pred.Class.ClassIDs) > 0 {
		clause := fmt.Sprintf("(visibility_scope = 'class' AND target_class = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(pred.Class.ClassIDs))
		if pred.Class.TeacherID != "" {
			clause += fmt.Sprintf(" AND (teacher_id IS NULL OR teacher_id = '' OR teacher_id = $%d)", len(args)+1)
			args = append(args, pred.Class.TeacherID)
		}
		anyOf = append(anyOf, clause+")")
	}
	if pred.TargetUser != "" {
		anyOf = append(anyOf, fmt.Sprintf("(visibility_scope = 'personal' AND target_user = $%d)", len(args)+1))
		args = append(args, pred.TargetUser)
	}
	if pred.LegacyBatch != "" {
		anyOf = append(anyOf, fmt.Sprintf("LOWER(TRIM(metadata->>'target_batch')) = LOWER($%d)", len(args)+1))
		args = append(args, strings.TrimSpace(pred.LegacyBatch))
	}
	if pred.LegacyRole != "" {
		anyOf = append(anyOf, fmt.Sprintf("LOWER(TRIM(metadata->>'target_role')) = $%d", len(args)+1))
		args = append(args, string(pred.LegacyRole))
	}
	if len(anyOf) == 0 {
		return append(where, "FALSE"), args
	}
	return append(where, "("+strings.Join(anyOf, " OR ")+")"), args
}

// GetByID fetches an event including soft-deleted rows.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf("SELECT %s FROM events WHERE id = $1", eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

// ListByCreatorInRange returns the creator's live events that may overlap [start, end). The
// filter is coarse; exact overlap is decided by the schedule package.
func (r *EventRepository) ListByCreatorInRange(ctx context.Context, createdBy string, start, end time.Time) ([]models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events
WHERE created_by = $1 AND is_deleted = FALSE AND (start_at <= $2 OR end_at >= $3)
ORDER BY start_at ASC`, eventColumns)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, createdBy, end, start); err != nil {
		return nil, fmt.Errorf("list events by creator: %w", err)
	}
	return events, nil
}

const insertEventQuery = `INSERT INTO events (id, title, description, start_at, end_at, location, event_type, created_by, created_by_role,
target_class, target_user, teacher_id, visibility_scope, metadata, is_deleted, is_recurring, repeat_until, series_id, created_at, updated_at)
VALUES (:id, :title, :description, :start_at, :end_at, :location, :event_type, :created_by, :created_by_role,
:target_class, :target_user, :teacher_id, :visibility_scope, :metadata, :is_deleted, :is_recurring, :repeat_until, :series_id, :created_at, :updated_at)`

// Create inserts a single event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	prepareInsert(event, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, insertEventQuery, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// CreateBatch inserts all events in one transaction. Either every row is stored or none.
func (r *EventRepository) CreateBatch(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event batch tx: %w", err)
	}
	now := time.Now().UTC()
	for _, event := range events {
		prepareInsert(event, now)
		if _, err := tx.NamedExecContext(ctx, insertEventQuery, event); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("create event batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event batch tx: %w", err)
	}
	return nil
}

func prepareInsert(event *models.Event, now time.Time) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
}

// Update modifies the mutable fields of an event.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET title = :title, description = :description, start_at = :start_at, end_at = :end_at,
location = :location, event_type = :event_type, target_class = :target_class, target_user = :target_user,
teacher_id = :teacher_id, visibility_scope = :visibility_scope, metadata = :metadata, updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, event)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return expectAffected(result, "update event")
}

// Delete removes an event.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return expectAffected(result, "delete event")
}

func expectAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
