package models

// MembershipSource names the table a teacher-class link came from.
type MembershipSource string

const (
	MembershipClassTeacher      MembershipSource = "class_teachers"
	MembershipTeacherAssignment MembershipSource = "teacher_assignments"
)

// ClassMembership links a teacher to a class through either membership table.
type ClassMembership struct {
	TeacherID string           `db:"teacher_id" json:"teacher_id"`
	ClassID   string           `db:"class_id" json:"class_id"`
	Source    MembershipSource `db:"source" json:"source"`
}
