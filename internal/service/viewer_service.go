package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/visibility"
	appErrors "github.com/noah-isme/eduschedule-api/pkg/errors"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type membershipRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassMembership, error)
}

// ViewerService turns an authenticated user id into a typed viewer.
type ViewerService struct {
	profiles    profileRepository
	memberships membershipRepository
	logger      *zap.Logger
}

// ViewerSummary is the public description of a resolved viewer.
type ViewerSummary struct {
	ID       string          `json:"id"`
	Role     models.UserRole `json:"role"`
	ClassIDs []string        `json:"class_ids"`
	BatchID  string          `json:"batch_id,omitempty"`
}

// NewViewerService constructs the service.
func NewViewerService(profiles profileRepository, memberships membershipRepository, logger *zap.Logger) *ViewerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewerService{profiles: profiles, memberships: memberships, logger: logger}
}

// Resolve loads the profile of userID and, for teachers, the classes they belong to.
func (s *ViewerService) Resolve(ctx context.Context, userID string) (visibility.Viewer, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing user identity")
	}
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown user")
		}
		s.logger.Error("load profile failed", zap.String("user_id", userID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	var index *visibility.TeacherAssignmentIndex
	if models.ParseRole(profile.Role) == models.RoleTeacher {
		memberships, err := s.memberships.ListByTeacher(ctx, profile.ID)
		if err != nil {
			s.logger.Error("load class memberships failed", zap.String("user_id", userID), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class memberships")
		}
		index = visibility.NewTeacherAssignmentIndex(memberships)
	}

	viewer, err := visibility.FromProfile(*profile, index)
	if err != nil {
		s.logger.Warn("profile has unusable role", zap.String("user_id", userID), zap.String("role", profile.Role))
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "account role cannot view events")
	}
	return viewer, nil
}

// Summarize describes v for API responses.
func Summarize(v visibility.Viewer) ViewerSummary {
	summary := ViewerSummary{ID: v.ViewerID(), Role: v.Role(), BatchID: v.Batch(), ClassIDs: []string{}}
	switch viewer := v.(type) {
	case visibility.Teacher:
		summary.ClassIDs = viewer.Classes.IDs()
	case visibility.Student:
		if viewer.ClassID != "" {
			summary.ClassIDs = []string{viewer.ClassID}
		}
	}
	return summary
}
