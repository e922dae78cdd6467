// Package schedule holds the pure write-path rules for calendar entries: interval validation,
// overlap detection against a creator's existing events and weekly series expansion.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/eduschedule-api/internal/models"
	appErrors "github.com/noah-isme/eduschedule-api/pkg/errors"
)

// ValidateInterval requires start to be strictly before end.
func ValidateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "start_at and end_at are required")
	}
	if !start.Before(end) {
		return appErrors.Clone(appErrors.ErrValidation, "end_at must be after start_at")
	}
	return nil
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect. Touching intervals do not.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FindConflict returns the earliest existing event overlapping [start, end), ignoring excludeID
// and deleted rows. existing is typically the coarse store pre-filter for the same creator.
func FindConflict(existing []models.Event, start, end time.Time, excludeID string) (*models.Event, error) {
	if err := ValidateInterval(start, end); err != nil {
		return nil, err
	}

	candidates := make([]models.Event, 0, len(existing))
	for _, ev := range existing {
		if ev.IsDeleted || (excludeID != "" && ev.ID == excludeID) {
			continue
		}
		if Overlaps(start, end, ev.StartAt, ev.EndAt) {
			candidates = append(candidates, ev)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].StartAt.Before(candidates[j].StartAt)
	})
	found := candidates[0]
	return &found, nil
}

// HasConflict is the boolean form of FindConflict.
func HasConflict(existing []models.Event, start, end time.Time, excludeID string) (bool, error) {
	found, err := FindConflict(existing, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return found != nil, nil
}

// ConflictError describes the overlapping event so the caller can report it.
func ConflictError(conflicting models.Event) *appErrors.Error {
	return appErrors.WithDetails(appErrors.ErrScheduleConflict,
		fmt.Sprintf("schedule overlaps with %q (%s - %s)", conflicting.Title,
			conflicting.StartAt.Format(time.RFC3339), conflicting.EndAt.Format(time.RFC3339)),
		map[string]interface{}{
			"conflicting_event_id":    conflicting.ID,
			"conflicting_event_title": conflicting.Title,
			"conflicting_start_at":    conflicting.StartAt,
			"conflicting_end_at":      conflicting.EndAt,
		})
}
