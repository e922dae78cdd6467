package visibility

import "github.com/noah-isme/eduschedule-api/internal/models"

// IsVisible decides whether v may see ev. Rules are evaluated in order and the first match wins:
// deleted events are hidden from everyone, admins see the rest, creators see their own events,
// then scope all/schoolwide, class targeting, personal targeting and finally legacy metadata.
//
// Students see every class event of their class. Teachers see a class event of a class they are
// assigned to only when it has no teacher or is assigned to them.
func IsVisible(v Viewer, ev models.Event) bool {
	if ev.IsDeleted || v == nil {
		return false
	}

	var seesClassEvent func(models.Event) bool
	switch viewer := v.(type) {
	case Admin:
		return true
	case Teacher:
		seesClassEvent = viewer.seesClassEvent
	case Student:
		seesClassEvent = viewer.seesClassEvent
	default:
		return false
	}

	id := v.ViewerID()
	if id != "" && ev.CreatedBy == id {
		return true
	}

	switch ev.VisibilityScope {
	case models.ScopeAll, models.ScopeSchoolwide:
		return true
	case models.ScopeClass:
		if seesClassEvent(ev) {
			return true
		}
	case models.ScopePersonal:
		if id != "" && models.StringValue(ev.TargetUser) == id {
			return true
		}
	}

	return LegacyTargetOf(ev).Matches(v)
}

// FilterVisible keeps the events v may see, preserving order.
func FilterVisible(v Viewer, events []models.Event) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if IsVisible(v, ev) {
			out = append(out, ev)
		}
	}
	return out
}

func (s Student) seesClassEvent(ev models.Event) bool {
	return s.ClassID != "" && models.StringValue(ev.TargetClass) == s.ClassID
}

func (t Teacher) seesClassEvent(ev models.Event) bool {
	if ev.TargetClass == nil || !t.Classes.Has(*ev.TargetClass) {
		return false
	}
	return ev.TeacherID == nil || *ev.TeacherID == "" || *ev.TeacherID == t.ID
}
