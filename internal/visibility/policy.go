package visibility

import (
	"fmt"
	"strings"

	"github.com/noah-isme/eduschedule-api/internal/models"
	appErrors "github.com/noah-isme/eduschedule-api/pkg/errors"
)

var teacherEventTypes = map[models.EventType]struct{}{
	models.EventTypeAssignment:        {},
	models.EventTypeExam:              {},
	models.EventTypePersonal:          {},
	models.EventTypeLesson:            {},
	models.EventTypeClassAnnouncement: {},
	models.EventTypeBroadcast:         {},
}

// Normalize applies the personal-event invariant: a personal event is scoped personal, targets
// its creator and has no class. A personal scope without a target user targets the creator.
func Normalize(ev *models.Event) {
	if ev.EventType == models.EventTypePersonal {
		ev.VisibilityScope = models.ScopePersonal
		creator := ev.CreatedBy
		ev.TargetUser = &creator
		ev.TargetClass = nil
	}
	if ev.VisibilityScope == models.ScopePersonal && models.StringValue(ev.TargetUser) == "" {
		creator := ev.CreatedBy
		ev.TargetUser = &creator
	}
	if ev.TeacherID != nil && strings.TrimSpace(*ev.TeacherID) == "" {
		ev.TeacherID = nil
	}
}

// Validate rejects events whose fields are inconsistent with their scope.
func Validate(ev models.Event) error {
	if strings.TrimSpace(ev.Title) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if !ev.EventType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown event_type %q", ev.EventType))
	}
	if !ev.VisibilityScope.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown visibility_scope %q", ev.VisibilityScope))
	}
	if !ev.StartAt.Before(ev.EndAt) {
		return appErrors.Clone(appErrors.ErrValidation, "end_at must be after start_at")
	}
	switch ev.VisibilityScope {
	case models.ScopeClass:
		if models.StringValue(ev.TargetClass) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "target_class is required for class scope")
		}
	case models.ScopePersonal:
		if models.StringValue(ev.TargetUser) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "target_user is required for personal scope")
		}
	case models.ScopeRole:
		if models.ParseRole(ev.Metadata.TargetRole) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "metadata.target_role must be admin, teacher or student for role scope")
		}
	case models.ScopeBatch:
		if strings.TrimSpace(ev.Metadata.TargetBatch) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "metadata.target_batch is required for batch scope")
		}
	}
	if ev.EventType == models.EventTypePersonal {
		if ev.VisibilityScope != models.ScopePersonal || models.StringValue(ev.TargetUser) != ev.CreatedBy || ev.TargetClass != nil {
			return appErrors.Clone(appErrors.ErrValidation, "personal events must target their creator only")
		}
	}
	return nil
}

// AuthorizeWrite checks that v may create or store ev. ev must already be normalised.
func AuthorizeWrite(v Viewer, ev models.Event) error {
	switch viewer := v.(type) {
	case Admin:
		return nil
	case Student:
		if ev.EventType != models.EventTypePersonal {
			return appErrors.Clone(appErrors.ErrForbidden, "students may only create personal events")
		}
		return nil
	case Teacher:
		return viewer.authorizeWrite(ev)
	default:
		return appErrors.ErrUnauthorized
	}
}

// AuthorizeMutation checks that v may update or delete existing.
func AuthorizeMutation(v Viewer, existing models.Event) error {
	switch v.(type) {
	case Admin:
		return nil
	case Teacher, Student:
		if existing.CreatedBy != v.ViewerID() {
			return appErrors.Clone(appErrors.ErrForbidden, "only the creator or an admin may modify this event")
		}
		return nil
	default:
		return appErrors.ErrUnauthorized
	}
}

func (t Teacher) authorizeWrite(ev models.Event) error {
	if ev.TeacherID != nil && *ev.TeacherID != t.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "teachers cannot assign events to another teacher")
	}
	if _, ok := teacherEventTypes[ev.EventType]; !ok {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("teachers cannot create %s events", ev.EventType))
	}
	switch ev.VisibilityScope {
	case models.ScopeAll, models.ScopeSchoolwide:
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can publish schoolwide events")
	case models.ScopeClass:
		if !t.Classes.Has(models.StringValue(ev.TargetClass)) {
			return appErrors.Clone(appErrors.ErrForbidden, "teacher is not assigned to the target class")
		}
	}
	if ev.EventType == models.EventTypeLesson && ev.VisibilityScope != models.ScopeClass {
		return appErrors.Clone(appErrors.ErrValidation, "lessons must target a class")
	}
	return nil
}
