package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/eduschedule-api/internal/models"
)

// MembershipRepository reads teacher-class links from both membership tables.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository constructs the repository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

const membershipUnion = `
SELECT teacher_id, class_id, 'class_teachers' AS source FROM class_teachers WHERE teacher_id = $1
UNION
SELECT teacher_id, class_id, 'teacher_assignments' AS source FROM teacher_assignments WHERE teacher_id = $1
ORDER BY class_id ASC`

// ListByTeacher returns every class the teacher belongs to through either table.
func (r *MembershipRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassMembership, error) {
	var memberships []models.ClassMembership
	if err := r.db.SelectContext(ctx, &memberships, membershipUnion, teacherID); err != nil {
		return nil, fmt.Errorf("list class memberships: %w", err)
	}
	return memberships, nil
}
