package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/visibility"
	appErrors "github.com/noah-isme/eduschedule-api/pkg/errors"
)

type eventRepoStub struct {
	items      map[string]*models.Event
	seq        int
	batchCalls int
	listCalls  int
	lastPred   visibility.Predicate
}

func newEventRepoStub(events ...models.Event) *eventRepoStub {
	s := &eventRepoStub{items: map[string]*models.Event{}}
	for i := range events {
		ev := events[i]
		s.items[ev.ID] = &ev
	}
	return s
}

func (s *eventRepoStub) sorted() []models.Event {
	out := make([]models.Event, 0, len(s.items))
	for _, ev := range s.items {
		out = append(out, *ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func (s *eventRepoStub) List(ctx context.Context, pred visibility.Predicate, filter models.EventFilter) ([]models.Event, int, error) {
	s.listCalls++
	s.lastPred = pred
	var out []models.Event
	for _, ev := range s.sorted() {
		if pred.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, len(out), nil
}

func (s *eventRepoStub) GetByID(ctx context.Context, id string) (*models.Event, error) {
	if ev, ok := s.items[id]; ok {
		cp := *ev
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *eventRepoStub) ListByCreatorInRange(ctx context.Context, createdBy string, start, end time.Time) ([]models.Event, error) {
	var out []models.Event
	for _, ev := range s.sorted() {
		if ev.CreatedBy == createdBy && !ev.IsDeleted {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *eventRepoStub) Create(ctx context.Context, event *models.Event) error {
	s.seq++
	event.ID = fmt.Sprintf("new-%d", s.seq)
	cp := *event
	s.items[event.ID] = &cp
	return nil
}

func (s *eventRepoStub) CreateBatch(ctx context.Context, events []*models.Event) error {
	s.batchCalls++
	for _, ev := range events {
		if err := s.Create(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *eventRepoStub) Update(ctx context.Context, event *models.Event) error {
	if _, ok := s.items[event.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *event
	s.items[event.ID] = &cp
	return nil
}

func (s *eventRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

type publisherStub struct {
	changes []models.EventChange
}

func (p *publisherStub) Publish(ctx context.Context, change models.EventChange) error {
	p.changes = append(p.changes, change)
	return nil
}

type cacheStub struct {
	store       map[string]eventPage
	invalidated []string
	setErr      error
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	page, ok := c.store[key]
	if !ok {
		return false, nil
	}
	*(dest.(*eventPage)) = page
	return true, nil
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.store[key] = value.(eventPage)
	return nil
}

func (c *cacheStub) Invalidate(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	c.store = map[string]eventPage{}
	return nil
}

func strPtr(v string) *string { return &v }

func slot(hour, minute int) time.Time {
	return time.Date(2025, 3, 3, hour, minute, 0, 0, time.UTC)
}

func newTestEventService(repo *eventRepoStub, pub *publisherStub, cache eventCache) *EventService {
	var publisher eventPublisher
	if pub != nil {
		publisher = pub
	}
	svc := NewEventService(repo, cache, publisher, nil, nil, zap.NewNop(), EventServiceConfig{})
	svc.now = func() time.Time { return slot(7, 0) }
	return svc
}

func assertCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want.Code, appErrors.FromError(err).Code, err.Error())
}

func TestEventServiceClassEventAssignedToAnotherTeacher(t *testing.T) {
	repo := newEventRepoStub(models.Event{
		ID: "E", Title: "Chemistry", CreatedBy: "A1", EventType: models.EventTypeLesson,
		VisibilityScope: models.ScopeClass, TargetClass: strPtr("C1"), TeacherID: strPtr("T2"),
		StartAt: slot(10, 0), EndAt: slot(11, 0),
	})
	svc := newTestEventService(repo, nil, nil)
	ctx := context.Background()

	student := visibility.Student{ID: "S1", ClassID: "C1"}
	events, _, err := svc.List(ctx, student, ListEventsRequest{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "E", events[0].ID)

	teacher := visibility.Teacher{ID: "T1", Classes: visibility.NewClassSet("C1")}
	events, _, err = svc.List(ctx, teacher, ListEventsRequest{})
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = svc.Get(ctx, teacher, "E")
	assertCode(t, err, appErrors.ErrNotFound)

	assigned := visibility.Teacher{ID: "T2", Classes: visibility.NewClassSet("C1")}
	got, err := svc.Get(ctx, assigned, "E")
	require.NoError(t, err)
	assert.Equal(t, "Chemistry", got.Title)
}

func TestEventServiceListHidesDeletedAndFiltersScope(t *testing.T) {
	repo := newEventRepoStub(
		models.Event{ID: "all", CreatedBy: "A1", VisibilityScope: models.ScopeAll, StartAt: slot(8, 0), EndAt: slot(9, 0)},
		models.Event{ID: "gone", CreatedBy: "A1", VisibilityScope: models.ScopeAll, IsDeleted: true, StartAt: slot(9, 0), EndAt: slot(10, 0)},
		models.Event{ID: "class", CreatedBy: "A1", VisibilityScope: models.ScopeClass, TargetClass: strPtr("C1"), StartAt: slot(10, 0), EndAt: slot(11, 0)},
	)
	svc := newTestEventService(repo, nil, nil)

	events, pagination, err := svc.List(context.Background(), visibility.Admin{ID: "A1"}, ListEventsRequest{})
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 50, pagination.PageSize)

	events, _, err = svc.List(context.Background(), visibility.Student{ID: "S1", ClassID: "C1"}, ListEventsRequest{Scope: "CLASS"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "class", events[0].ID)
}

func TestEventServiceListValidation(t *testing.T) {
	svc := newTestEventService(newEventRepoStub(), nil, nil)
	from := slot(12, 0)
	to := slot(8, 0)

	_, _, err := svc.List(context.Background(), visibility.Admin{ID: "A1"}, ListEventsRequest{From: &from, To: &to})
	assertCode(t, err, appErrors.ErrValidation)

	_, _, err = svc.List(context.Background(), visibility.Admin{ID: "A1"}, ListEventsRequest{Scope: "galaxy"})
	assertCode(t, err, appErrors.ErrValidation)

	_, _, err = svc.List(context.Background(), nil, ListEventsRequest{})
	assertCode(t, err, appErrors.ErrUnauthorized)
}

func TestEventServiceListUsesCacheUntilWrite(t *testing.T) {
	repo := newEventRepoStub(models.Event{ID: "all", CreatedBy: "A1", VisibilityScope: models.ScopeAll, StartAt: slot(8, 0), EndAt: slot(9, 0)})
	cache := &cacheStub{store: map[string]eventPage{}}
	svc := newTestEventService(repo, nil, cache)
	ctx := context.Background()
	admin := visibility.Admin{ID: "A1"}

	_, _, err := svc.List(ctx, admin, ListEventsRequest{})
	require.NoError(t, err)
	events, _, err := svc.List(ctx, admin, ListEventsRequest{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Create(ctx, admin, CreateEventRequest{Title: "Assembly", EventType: "administrative", VisibilityScope: "all",
		StartAt: slot(13, 0), EndAt: slot(14, 0)})
	require.NoError(t, err)
	assert.Equal(t, []string{EventListKeyPrefix + "*"}, cache.invalidated)

	events, _, err = svc.List(ctx, admin, ListEventsRequest{})
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 2, repo.listCalls)
}

func TestEventServiceCreateRejectsOverlap(t *testing.T) {
	repo := newEventRepoStub(models.Event{ID: "physics", Title: "Physics", CreatedBy: "A1", EventType: models.EventTypeLesson,
		VisibilityScope: models.ScopeClass, TargetClass: strPtr("C1"), StartAt: slot(10, 0), EndAt: slot(11, 0)})
	pub := &publisherStub{}
	svc := newTestEventService(repo, pub, nil)
	admin := visibility.Admin{ID: "A1"}
	req := CreateEventRequest{Title: "Quiz", EventType: "exam", VisibilityScope: "class", TargetClass: strPtr("C1"),
		StartAt: slot(10, 30), EndAt: slot(10, 45)}

	_, err := svc.Create(context.Background(), admin, req)
	assertCode(t, err, appErrors.ErrScheduleConflict)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "physics", appErr.Details["conflicting_event_id"])
	assert.Equal(t, "Physics", appErr.Details["conflicting_event_title"])
	assert.Len(t, repo.items, 1)
	assert.Empty(t, pub.changes)

	req.StartAt, req.EndAt = slot(11, 0), slot(12, 0)
	created, err := svc.Create(context.Background(), admin, req)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.RoleAdmin, created[0].CreatedByRole)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, models.EventCreated, pub.changes[0].Kind)
}

func TestEventServiceCreateRejectsInvalidInterval(t *testing.T) {
	svc := newTestEventService(newEventRepoStub(), nil, nil)

	_, err := svc.Create(context.Background(), visibility.Admin{ID: "A1"}, CreateEventRequest{Title: "Bad", EventType: "exam",
		VisibilityScope: "all", StartAt: slot(11, 0), EndAt: slot(10, 0)})
	assertCode(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), visibility.Admin{ID: "A1"}, CreateEventRequest{Title: "Bad", EventType: "exam",
		VisibilityScope: "class", StartAt: slot(9, 0), EndAt: slot(10, 0)})
	assertCode(t, err, appErrors.ErrValidation)
}

func TestEventServiceCreateRecurringSeries(t *testing.T) {
	repo := newEventRepoStub()
	pub := &publisherStub{}
	svc := newTestEventService(repo, pub, nil)
	teacher := visibility.Teacher{ID: "T1", Classes: visibility.NewClassSet("C1")}

	created, err := svc.Create(context.Background(), teacher, CreateEventRequest{
		Title: "Homeroom", EventType: "lesson", VisibilityScope: "class", TargetClass: strPtr("C1"),
		StartAt: slot(9, 0), EndAt: slot(10, 0), IsRecurring: true, RepeatUntil: "2025-03-24T09:00:00Z",
	})
	require.NoError(t, err)
	require.Len(t, created, 4)
	assert.Equal(t, 1, repo.batchCalls)
	assert.Len(t, pub.changes, 4)
	series := models.StringValue(created[0].SeriesID)
	assert.NotEmpty(t, series)
	for k, ev := range created {
		assert.True(t, ev.StartAt.Equal(slot(9, 0).AddDate(0, 0, 7*k)))
		assert.Equal(t, time.Hour, ev.Duration())
		assert.True(t, ev.IsRecurring)
		assert.Equal(t, series, models.StringValue(ev.SeriesID))
	}
}

func TestEventServiceRecurringConflictRejectsWholeSeries(t *testing.T) {
	repo := newEventRepoStub(models.Event{ID: "trip", Title: "Field trip", CreatedBy: "T1", EventType: models.EventTypeExam,
		VisibilityScope: models.ScopePersonal, TargetUser: strPtr("T1"),
		StartAt: slot(9, 30).AddDate(0, 0, 14), EndAt: slot(12, 0).AddDate(0, 0, 14)})
	svc := newTestEventService(repo, nil, nil)
	teacher := visibility.Teacher{ID: "T1", Classes: visibility.NewClassSet("C1")}

	_, err := svc.Create(context.Background(), teacher, CreateEventRequest{
		Title: "Homeroom", EventType: "lesson", VisibilityScope: "class", TargetClass: strPtr("C1"),
		StartAt: slot(9, 0), EndAt: slot(10, 0), IsRecurring: true, RepeatUntil: "2025-03-24",
	})
	assertCode(t, err, appErrors.ErrScheduleConflict)
	assert.Len(t, repo.items, 1)
	assert.Zero(t, repo.batchCalls)
}

func TestEventServiceRecurringRejectsBadRepeatUntil(t *testing.T) {
	svc := newTestEventService(newEventRepoStub(), nil, nil)
	admin := visibility.Admin{ID: "A1"}
	req := CreateEventRequest{Title: "Drill", EventType: "sports", VisibilityScope: "all",
		StartAt: slot(9, 0), EndAt: slot(10, 0), IsRecurring: true}

	_, err := svc.Create(context.Background(), admin, req)
	assertCode(t, err, appErrors.ErrValidation)

	req.RepeatUntil = "soon"
	_, err = svc.Create(context.Background(), admin, req)
	assertCode(t, err, appErrors.ErrValidation)

	req.RepeatUntil = "2025-02-01"
	_, err = svc.Create(context.Background(), admin, req)
	assertCode(t, err, appErrors.ErrValidation)
}

func TestEventServiceTeacherCannotAssignAnotherTeacher(t *testing.T) {
	svc := newTestEventService(newEventRepoStub(), nil, nil)
	teacher := visibility.Teacher{ID: "T1", Classes: visibility.NewClassSet("C1")}
	req := CreateEventRequest{Title: "Lab", EventType: "lesson", VisibilityScope: "class", TargetClass: strPtr("C1"),
		TeacherID: strPtr("T2"), StartAt: slot(9, 0), EndAt: slot(10, 0)}

	_, err := svc.Create(context.Background(), teacher, req)
	assertCode(t, err, appErrors.ErrForbidden)

	req.TeacherID = strPtr("T1")
	_, err = svc.Create(context.Background(), teacher, req)
	require.NoError(t, err)

	req.TeacherID = strPtr("T2")
	req.StartAt, req.EndAt = slot(13, 0), slot(14, 0)
	_, err = svc.Create(context.Background(), visibility.Admin{ID: "A1"}, req)
	require.NoError(t, err)
}

func TestEventServiceStudentPersonalEventIsNormalised(t *testing.T) {
	repo := newEventRepoStub()
	svc := newTestEventService(repo, nil, nil)
	student := visibility.Student{ID: "S1", ClassID: "C1"}

	created, err := svc.Create(context.Background(), student, CreateEventRequest{Title: "Study", EventType: "personal",
		VisibilityScope: "class", TargetClass: strPtr("C1"), StartAt: slot(19, 0), EndAt: slot(20, 0)})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, models.ScopePersonal, created[0].VisibilityScope)
	assert.Equal(t, "S1", models.StringValue(created[0].TargetUser))
	assert.Nil(t, created[0].TargetClass)

	_, err = svc.Create(context.Background(), student, CreateEventRequest{Title: "Party", EventType: "exam",
		VisibilityScope: "class", TargetClass: strPtr("C1"), StartAt: slot(20, 0), EndAt: slot(21, 0)})
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestEventServiceUpdateExcludesItselfFromConflicts(t *testing.T) {
	repo := newEventRepoStub(
		models.Event{ID: "quiz", Title: "Quiz", CreatedBy: "T1", EventType: models.EventTypeExam, VisibilityScope: models.ScopeClass,
			TargetClass: strPtr("C1"), StartAt: slot(10, 0), EndAt: slot(11, 0)},
		models.Event{ID: "lab", Title: "Lab", CreatedBy: "T1", EventType: models.EventTypeExam, VisibilityScope: models.ScopeClass,
			TargetClass: strPtr("C1"), StartAt: slot(12, 0), EndAt: slot(13, 0)},
	)
	pub := &publisherStub{}
	svc := newTestEventService(repo, pub, nil)
	teacher := visibility.Teacher{ID: "T1", Classes: visibility.NewClassSet("C1")}
	req := UpdateEventRequest{Title: "Quiz v2", EventType: "exam", VisibilityScope: "class", TargetClass: strPtr("C1"),
		StartAt: slot(10, 15), EndAt: slot(11, 15)}

	updated, err := svc.Update(context.Background(), teacher, "quiz", req)
	require.NoError(t, err)
	assert.Equal(t, "Quiz v2", updated.Title)
	assert.Equal(t, "T1", updated.CreatedBy)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, models.EventUpdated, pub.changes[0].Kind)

	req.StartAt, req.EndAt = slot(11, 30), slot(12, 30)
	_, err = svc.Update(context.Background(), teacher, "quiz", req)
	assertCode(t, err, appErrors.ErrScheduleConflict)
}

func TestEventServiceMutationsRequireCreatorOrAdmin(t *testing.T) {
	repo := newEventRepoStub(models.Event{ID: "notice", Title: "Notice", CreatedBy: "T1", EventType: models.EventTypeExam,
		VisibilityScope: models.ScopeAll, StartAt: slot(10, 0), EndAt: slot(11, 0)})
	pub := &publisherStub{}
	svc := newTestEventService(repo, pub, nil)
	ctx := context.Background()

	err := svc.Delete(ctx, visibility.Teacher{ID: "T2"}, "notice")
	assertCode(t, err, appErrors.ErrForbidden)

	_, err = svc.Update(ctx, visibility.Student{ID: "S1"}, "notice", UpdateEventRequest{Title: "x", EventType: "exam",
		VisibilityScope: "all", StartAt: slot(10, 0), EndAt: slot(11, 0)})
	assertCode(t, err, appErrors.ErrForbidden)

	err = svc.Delete(ctx, visibility.Admin{ID: "A1"}, "missing")
	assertCode(t, err, appErrors.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, visibility.Admin{ID: "A1"}, "notice"))
	assert.Empty(t, repo.items)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, models.EventDeleted, pub.changes[0].Kind)
	assert.Equal(t, "Notice", pub.changes[0].Event.Title)
}

func TestEventServiceDeleteInvisibleEventIsNotFound(t *testing.T) {
	repo := newEventRepoStub(models.Event{ID: "private", CreatedBy: "S2", EventType: models.EventTypePersonal,
		VisibilityScope: models.ScopePersonal, TargetUser: strPtr("S2"), StartAt: slot(10, 0), EndAt: slot(11, 0)})
	svc := newTestEventService(repo, nil, nil)

	err := svc.Delete(context.Background(), visibility.Student{ID: "S1"}, "private")
	assertCode(t, err, appErrors.ErrNotFound)
	assert.Len(t, repo.items, 1)
}

func TestEventServiceCreateBroadcast(t *testing.T) {
	repo := newEventRepoStub(models.Event{ID: "busy", CreatedBy: "A1", EventType: models.EventTypeAdministrative,
		VisibilityScope: models.ScopeAll, StartAt: slot(6, 0), EndAt: slot(23, 0)})
	svc := newTestEventService(repo, nil, nil)
	admin := visibility.Admin{ID: "A1"}

	ev, err := svc.CreateBroadcast(context.Background(), admin, BroadcastRequest{Title: "Flood", Message: "School closed",
		Urgent: true, Target: "role", TargetRole: "Student"})
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeUrgentBroadcast, ev.EventType)
	assert.Equal(t, models.ScopeRole, ev.VisibilityScope)
	assert.Equal(t, "student", ev.Metadata.TargetRole)
	assert.True(t, ev.Metadata.IsUrgent)
	assert.Equal(t, "urgent", ev.Metadata.NotificationType)
	assert.True(t, ev.StartAt.Equal(slot(7, 0)))
	assert.Equal(t, 24*time.Hour, ev.Duration())
	assert.True(t, visibility.IsVisible(visibility.Student{ID: "S9"}, *ev))
	assert.False(t, visibility.IsVisible(visibility.Teacher{ID: "T9"}, *ev))

	teacher := visibility.Teacher{ID: "T1", Classes: visibility.NewClassSet("C1")}
	ev, err = svc.CreateBroadcast(context.Background(), teacher, BroadcastRequest{Title: "Bring books", Message: "Chapter 4",
		Target: "class", TargetClass: "C1"})
	require.NoError(t, err)
	assert.Equal(t, models.EventTypeClassAnnouncement, ev.EventType)

	_, err = svc.CreateBroadcast(context.Background(), teacher, BroadcastRequest{Title: "Alarm", Message: "now",
		Urgent: true, Target: "class", TargetClass: "C1"})
	assertCode(t, err, appErrors.ErrForbidden)

	_, err = svc.CreateBroadcast(context.Background(), teacher, BroadcastRequest{Title: "All", Message: "hi", Target: "all"})
	assertCode(t, err, appErrors.ErrForbidden)

	_, err = svc.CreateBroadcast(context.Background(), admin, BroadcastRequest{Title: "Batch", Message: "hi", Target: "batch"})
	assertCode(t, err, appErrors.ErrValidation)
}

func TestEventServiceCheckConflict(t *testing.T) {
	repo := newEventRepoStub(models.Event{ID: "exam", Title: "Exam", CreatedBy: "T1", EventType: models.EventTypeExam,
		VisibilityScope: models.ScopeAll, StartAt: slot(10, 0).AddDate(0, 0, 7), EndAt: slot(11, 0).AddDate(0, 0, 7)})
	svc := newTestEventService(repo, nil, nil)
	teacher := visibility.Teacher{ID: "T1"}

	result, err := svc.CheckConflict(context.Background(), teacher, ConflictCheckRequest{StartAt: slot(10, 0), EndAt: slot(11, 0)})
	require.NoError(t, err)
	assert.False(t, result.Conflict)
	assert.Equal(t, 1, result.Instances)

	result, err = svc.CheckConflict(context.Background(), teacher, ConflictCheckRequest{StartAt: slot(10, 0), EndAt: slot(11, 0),
		RepeatUntil: "2025-03-17"})
	require.NoError(t, err)
	assert.True(t, result.Conflict)
	assert.Equal(t, 3, result.Instances)
	assert.Equal(t, "exam", result.ConflictingEvent.ID)

	result, err = svc.CheckConflict(context.Background(), teacher, ConflictCheckRequest{StartAt: slot(10, 0), EndAt: slot(11, 0),
		RepeatUntil: "2025-03-17", ExcludeEventID: "exam"})
	require.NoError(t, err)
	assert.False(t, result.Conflict)

	_, err = svc.CheckConflict(context.Background(), teacher, ConflictCheckRequest{StartAt: slot(11, 0), EndAt: slot(10, 0)})
	assertCode(t, err, appErrors.ErrValidation)
}

func TestListLogsCacheWriteFailure(t *testing.T) {
	repo := newEventRepoStub(models.Event{ID: "E1", Title: "Assembly", StartAt: slot(9, 0), EndAt: slot(10, 0), EventType: models.EventTypeAdministrative, VisibilityScope: models.ScopeAll, CreatedBy: "A1"})
	cache := &cacheStub{store: map[string]eventPage{}, setErr: errors.New("redis down")}
	svc := newTestEventService(repo, nil, cache)
	core, logs := observer.New(zap.DebugLevel)
	svc.logger = zap.New(core)

	events, _, err := svc.List(context.Background(), visibility.Student{ID: "S1", ClassID: "C1"}, ListEventsRequest{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	entries := logs.FilterMessage("cache event listing failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
}
