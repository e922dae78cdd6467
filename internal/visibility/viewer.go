// Package visibility decides which events a viewer may see and which writes a viewer may perform.
// Everything here is pure: callers fetch profiles, memberships and events beforehand.
package visibility

import (
	"fmt"

	"github.com/noah-isme/eduschedule-api/internal/models"
)

// Viewer is the identity an event is resolved against. It is one of Admin, Teacher or Student.
type Viewer interface {
	ViewerID() string
	Role() models.UserRole
	Batch() string
	isViewer()
}

// Admin sees every non-deleted event and may write anything.
type Admin struct {
	ID string
}

// Teacher sees class events of the classes in Classes, subject to teacher assignment.
type Teacher struct {
	ID      string
	BatchID string
	Classes ClassSet
}

// Student sees every class event of ClassID.
type Student struct {
	ID      string
	ClassID string
	BatchID string
}

func (a Admin) ViewerID() string { return a.ID }
func (a Admin) Role() models.UserRole { return models.RoleAdmin }
func (a Admin) Batch() string { return "" }
func (Admin) isViewer() {}
func (t Teacher) ViewerID() string { return t.ID }
func (t Teacher) Role() models.UserRole { return models.RoleTeacher }
func (t Teacher) Batch() string { return t.BatchID }
func (Teacher) isViewer() {}
func (s Student) ViewerID() string { return s.ID }
func (s Student) Role() models.UserRole { return models.RoleStudent }
func (s Student) Batch() string { return s.BatchID }
func (Student) isViewer() {}

// FromProfile builds the typed viewer for a stored profile. Teacher class membership comes from index.
func FromProfile(profile models.Profile, index *TeacherAssignmentIndex) (Viewer, error) {
	switch models.ParseRole(profile.Role) {
	case models.RoleAdmin:
		return Admin{ID: profile.ID}, nil
	case models.RoleTeacher:
		return Teacher{
			ID:      profile.ID,
			BatchID: models.StringValue(profile.BatchID),
			Classes: index.ClassesFor(profile.ID),
		}, nil
	case models.RoleStudent:
		return Student{
			ID:      profile.ID,
			ClassID: models.StringValue(profile.ClassID),
			BatchID: models.StringValue(profile.BatchID),
		}, nil
	default:
		return nil, fmt.Errorf("profile %s has unknown role %q", profile.ID, profile.Role)
	}
}
