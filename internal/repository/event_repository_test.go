package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/visibility"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var eventRowColumns = []string{"id", "title", "description", "start_at", "end_at", "location", "event_type", "created_by",
	"created_by_role", "target_class", "target_user", "teacher_id", "visibility_scope", "metadata", "is_deleted",
	"is_recurring", "repeat_until", "series_id", "created_at", "updated_at"}

func eventRow(rows *sqlmock.Rows, id, scope, targetClass string, start time.Time) *sqlmock.Rows {
	var class interface{}
	if targetClass != "" {
		class = targetClass
	}
	return rows.AddRow(id, "Exam", nil, start, start.Add(time.Hour), nil, "exam", "A1", "admin",
		class, nil, nil, scope, []byte(`{"target_batch":"B1","room":"lab"}`), false, false, nil, nil, start, start)
}

func strPtr(value string) *string {
	return &value
}

func TestEventRepositoryListRendersTeacherPredicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	pred := visibility.BuildFilterPredicate(visibility.Teacher{ID: "T1", BatchID: "B1", Classes: visibility.NewClassSet("C1")}, "")
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	start := from.Add(48 * time.Hour)

	mock.ExpectQuery(`SELECT .+ FROM events WHERE is_deleted = FALSE AND \(created_by = \$1 OR visibility_scope = ANY\(\$2\) OR \(visibility_scope = 'class' AND target_class = ANY\(\$3\) AND \(teacher_id IS NULL OR teacher_id = '' OR teacher_id = \$4\)\) OR \(visibility_scope = 'personal' AND target_user = \$5\) OR .+target_batch.+ = LOWER\(\$6\) OR .+target_role.+ = \$7\) AND end_at >= \$8 ORDER BY start_at ASC, id ASC LIMIT 50 OFFSET 0`).
		WithArgs("T1", pq.Array([]string{"all", "schoolwide"}), pq.Array([]string{"C1"}), "T1", "T1", "B1", "teacher", from).
		WillReturnRows(eventRow(sqlmock.NewRows(eventRowColumns), "ev-1", "class", "C1", start))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE is_deleted = FALSE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	events, total, err := repo.List(context.Background(), pred, models.EventFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "C1", models.StringValue(events[0].TargetClass))
	assert.Equal(t, "B1", events[0].Metadata.TargetBatch)
	assert.Equal(t, "lab", events[0].Metadata.Extra["room"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryListAdminUsesOnlyDeletedAndHint(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	pred := visibility.BuildFilterPredicate(visibility.Admin{ID: "A1"}, models.ScopeClass)

	mock.ExpectQuery(`FROM events WHERE is_deleted = FALSE AND visibility_scope = \$1 AND event_type = ANY\(\$2\) ORDER BY start_at ASC, id ASC LIMIT 10 OFFSET 10`).
		WithArgs("class", pq.Array([]string{"exam"})).
		WillReturnRows(sqlmock.NewRows(eventRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	events, total, err := repo.List(context.Background(), pred, models.EventFilter{
		Types: []models.EventType{models.EventTypeExam}, Page: 2, PageSize: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 11, total)
}

func TestPredicateClauseWithoutDisjunctsSelectsNothing(t *testing.T) {
	where, args := predicateClause(visibility.Predicate{})

	assert.Equal(t, []string{"is_deleted = FALSE", "FALSE"}, where)
	assert.Empty(t, args)
}

func TestEventRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectQuery(`FROM events WHERE id = \$1`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestEventRepositoryListByCreatorInRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE created_by = $1 AND is_deleted = FALSE AND (start_at <= $2 OR end_at >= $3)")).
		WithArgs("T1", end, start).
		WillReturnRows(eventRow(sqlmock.NewRows(eventRowColumns), "ev-1", "all", "", start))

	events, err := repo.ListByCreatorInRange(context.Background(), "T1", start, end)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCreateBatchCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	first := &models.Event{Title: "Homeroom", StartAt: start, EndAt: start.Add(time.Hour), EventType: models.EventTypeLesson,
		CreatedBy: "T1", VisibilityScope: models.ScopeClass, TargetClass: strPtr("C1"), IsRecurring: true}
	second := *first
	second.StartAt = start.AddDate(0, 0, 7)
	second.EndAt = second.StartAt.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateBatch(context.Background(), []*models.Event{first, &second}))
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCreateBatchRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	ev := &models.Event{Title: "x", StartAt: start, EndAt: start.Add(time.Hour), CreatedBy: "T1"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	require.Error(t, repo.CreateBatch(context.Background(), []*models.Event{ev}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryUpdateAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE events SET").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), &models.Event{ID: "ev-1", StartAt: start, EndAt: start.Add(time.Hour)}))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = $1")).WithArgs("ev-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "ev-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = $1")).WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "gone"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
