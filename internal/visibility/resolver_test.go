package visibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/eduschedule-api/internal/models"
)

func strPtr(v string) *string {
	return &v
}

func classEvent(classID string, teacherID *string) models.Event {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	return models.Event{
		ID:              "ev-class",
		Title:           "Math",
		StartAt:         start,
		EndAt:           start.Add(time.Hour),
		EventType:       models.EventTypeLesson,
		CreatedBy:       "admin-1",
		CreatedByRole:   models.RoleAdmin,
		TargetClass:     strPtr(classID),
		TeacherID:       teacherID,
		VisibilityScope: models.ScopeClass,
	}
}

func sampleViewers() []Viewer {
	return []Viewer{
		Admin{ID: "admin-9"},
		Teacher{ID: "T1", Classes: NewClassSet("C1")},
		Teacher{ID: "T3", BatchID: "B2"},
		Student{ID: "S1", ClassID: "C1", BatchID: "B1"},
		Student{ID: "S2"},
	}
}

func TestOpenScopesVisibleToEveryone(t *testing.T) {
	for _, scope := range []models.VisibilityScope{models.ScopeAll, models.ScopeSchoolwide} {
		ev := models.Event{ID: "ev", CreatedBy: "someone", VisibilityScope: scope}
		for _, v := range sampleViewers() {
			assert.True(t, IsVisible(v, ev), "scope %s viewer %T", scope, v)
		}
	}
}

func TestDeletedEventsHiddenFromEveryone(t *testing.T) {
	ev := models.Event{ID: "ev", CreatedBy: "T1", VisibilityScope: models.ScopeAll, IsDeleted: true}
	for _, v := range sampleViewers() {
		assert.False(t, IsVisible(v, ev), "viewer %T", v)
	}
	assert.False(t, IsVisible(Teacher{ID: "T1"}, ev), "creator")
}

func TestClassEventTeacherAssignmentExclusivity(t *testing.T) {
	ev := classEvent("C1", strPtr("T1"))

	assert.True(t, IsVisible(Teacher{ID: "T1", Classes: NewClassSet("C1")}, ev))
	assert.False(t, IsVisible(Teacher{ID: "T2", Classes: NewClassSet("C1")}, ev))
	assert.True(t, IsVisible(Student{ID: "S1", ClassID: "C1"}, ev))
	assert.True(t, IsVisible(Admin{ID: "A"}, ev))
}

func TestClassEventWithoutTeacherVisibleToEveryAssignedTeacher(t *testing.T) {
	ev := classEvent("C1", nil)

	assert.True(t, IsVisible(Teacher{ID: "T1", Classes: NewClassSet("C1")}, ev))
	assert.True(t, IsVisible(Teacher{ID: "T2", Classes: NewClassSet("C1", "C2")}, ev))
	assert.False(t, IsVisible(Teacher{ID: "T4", Classes: NewClassSet("C2")}, ev))
}

func TestStudentIgnoresTeacherAssignment(t *testing.T) {
	viewer := Student{ID: "S1", ClassID: "C1"}
	ev := models.Event{VisibilityScope: models.ScopeClass, TargetClass: strPtr("C1"), TeacherID: strPtr("T2"), CreatedBy: "T2"}

	assert.True(t, IsVisible(viewer, ev))
	assert.False(t, IsVisible(Student{ID: "S9", ClassID: "C2"}, ev))
}

func TestTeacherDoesNotSeeClassEventAssignedToColleague(t *testing.T) {
	index := NewTeacherAssignmentIndex([]models.ClassMembership{{TeacherID: "T1", ClassID: "C1", Source: models.MembershipTeacherAssignment}})
	viewer := Teacher{ID: "T1", Classes: index.ClassesFor("T1")}
	ev := models.Event{VisibilityScope: models.ScopeClass, TargetClass: strPtr("C1"), TeacherID: strPtr("T2"), CreatedBy: "T2"}

	assert.False(t, IsVisible(viewer, ev))
}

func TestCreatorAlwaysSeesOwnEvent(t *testing.T) {
	ev := classEvent("C7", strPtr("T2"))
	ev.CreatedBy = "T1"

	assert.True(t, IsVisible(Teacher{ID: "T1"}, ev))
}

func TestPersonalEventVisibleOnlyToTarget(t *testing.T) {
	ev := models.Event{CreatedBy: "A1", VisibilityScope: models.ScopePersonal, TargetUser: strPtr("S1")}

	assert.True(t, IsVisible(Student{ID: "S1"}, ev))
	assert.False(t, IsVisible(Student{ID: "S2"}, ev))
	assert.False(t, IsVisible(Teacher{ID: "T1"}, ev))
}

func TestLegacyMetadataTargeting(t *testing.T) {
	batchEv := models.Event{CreatedBy: "A1", VisibilityScope: models.ScopeBatch, Metadata: models.EventMetadata{TargetBatch: "B1"}}
	assert.True(t, IsVisible(Student{ID: "S1", BatchID: "b1"}, batchEv))
	assert.False(t, IsVisible(Student{ID: "S2", BatchID: "B2"}, batchEv))
	assert.False(t, IsVisible(Student{ID: "S3"}, batchEv))
	assert.True(t, IsVisible(Student{ID: "S4", BatchID: " B1 "}, batchEv))
	assert.False(t, IsVisible(Student{ID: "S5", BatchID: "   "}, batchEv))

	roleEv := models.Event{CreatedBy: "A1", VisibilityScope: models.ScopeRole, Metadata: models.EventMetadata{TargetRole: "TEACHER"}}
	assert.True(t, IsVisible(Teacher{ID: "T1"}, roleEv))
	assert.False(t, IsVisible(Student{ID: "S1"}, roleEv))
}

func TestLegacyMetadataIsFallbackAfterStructuredRules(t *testing.T) {
	ev := classEvent("C1", strPtr("T2"))
	ev.Metadata.TargetRole = "teacher"

	assert.True(t, IsVisible(Teacher{ID: "T1", Classes: NewClassSet("C1")}, ev))
	assert.True(t, IsVisible(Student{ID: "S1", ClassID: "C1"}, ev))
	assert.False(t, IsVisible(Student{ID: "S2", ClassID: "C2"}, ev))
}

func TestUnknownViewerSeesNothing(t *testing.T) {
	assert.False(t, IsVisible(nil, models.Event{VisibilityScope: models.ScopeAll}))
}

func TestFilterVisiblePreservesOrder(t *testing.T) {
	events := []models.Event{
		{ID: "1", VisibilityScope: models.ScopeAll},
		{ID: "2", VisibilityScope: models.ScopePersonal, TargetUser: strPtr("other")},
		{ID: "3", VisibilityScope: models.ScopeSchoolwide},
	}

	out := FilterVisible(Student{ID: "S1"}, events)

	if assert.Len(t, out, 2) {
		assert.Equal(t, "1", out[0].ID)
		assert.Equal(t, "3", out[1].ID)
	}
}
