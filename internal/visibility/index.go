package visibility

import (
	"sort"

	"github.com/noah-isme/eduschedule-api/internal/models"
)

// ClassSet is an immutable set of class ids.
type ClassSet map[string]struct{}

// NewClassSet builds a set from ids, skipping blanks.
func NewClassSet(ids ...string) ClassSet {
	set := make(ClassSet, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Has reports membership.
func (s ClassSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in sorted order.
func (s ClassSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TeacherAssignmentIndex answers "is teacher T assigned to class C". It is the union of the
// class_teachers and teacher_assignments tables, built once and shared read-only.
type TeacherAssignmentIndex struct {
	byTeacher map[string]ClassSet
}

// NewTeacherAssignmentIndex indexes memberships from either source table.
func NewTeacherAssignmentIndex(memberships []models.ClassMembership) *TeacherAssignmentIndex {
	idx := &TeacherAssignmentIndex{byTeacher: make(map[string]ClassSet)}
	for _, m := range memberships {
		if m.TeacherID == "" || m.ClassID == "" {
			continue
		}
		set, ok := idx.byTeacher[m.TeacherID]
		if !ok {
			set = make(ClassSet)
			idx.byTeacher[m.TeacherID] = set
		}
		set[m.ClassID] = struct{}{}
	}
	return idx
}

// Assigned reports whether the teacher is linked to the class.
func (i *TeacherAssignmentIndex) Assigned(teacherID, classID string) bool {
	if i == nil {
		return false
	}
	return i.byTeacher[teacherID].Has(classID)
}

// ClassesFor returns the classes of a teacher. The result is never nil.
func (i *TeacherAssignmentIndex) ClassesFor(teacherID string) ClassSet {
	if i == nil {
		return ClassSet{}
	}
	set := i.byTeacher[teacherID]
	out := make(ClassSet, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}
