package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/noah-isme/eduschedule-api/internal/models"
	appErrors "github.com/noah-isme/eduschedule-api/pkg/errors"
)

// DefaultMaxOccurrences caps a weekly series at two school years.
const DefaultMaxOccurrences = 104

const week = 7 * 24 * time.Hour

// Expander expands weekly recurring events.
type Expander struct {
	MaxOccurrences int
}

// ExpandRecurring expands base into weekly instances using the default cap.
func ExpandRecurring(base models.Event, repeatUntil time.Time) ([]models.Event, error) {
	return Expander{}.Expand(base, repeatUntil)
}

// Expand returns one instance per week, starting with base itself, while the instance start is
// on or before repeatUntil. Every instance keeps the base duration and is stamped as recurring
// with the same repeat_until. repeatUntil before base start yields no instances.
func (x Expander) Expand(base models.Event, repeatUntil time.Time) ([]models.Event, error) {
	if err := ValidateInterval(base.StartAt, base.EndAt); err != nil {
		return nil, err
	}
	if repeatUntil.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "repeat_until is required for recurring events")
	}
	if repeatUntil.Before(base.StartAt) {
		return []models.Event{}, nil
	}

	limit := x.MaxOccurrences
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}
	if expected := int(repeatUntil.Sub(base.StartAt)/week) + 1; expected > limit {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("recurring series would create %d events, the limit is %d", expected, limit))
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: base.StartAt,
		Until:   repeatUntil,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence")
	}

	duration := base.Duration()
	until := repeatUntil
	occurrences := rule.All()
	instances := make([]models.Event, 0, len(occurrences))
	// rrule works in whole seconds, so it only bounds the series. Instance k starts exactly k
	// weeks after base.
	for k := range occurrences {
		if len(instances) == limit {
			break
		}
		start := base.StartAt.AddDate(0, 0, 7*k)
		if start.After(repeatUntil) {
			break
		}
		instance := base
		instance.ID = ""
		instance.StartAt = start
		instance.EndAt = start.Add(duration)
		instance.IsRecurring = true
		instance.RepeatUntil = &until
		instances = append(instances, instance)
	}
	return instances, nil
}

// ParseRepeatUntil accepts RFC 3339 timestamps or plain dates. A plain date means the end of
// that day in loc.
func ParseRepeatUntil(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "repeat_until is required for recurring events")
	}
	if loc == nil {
		loc = time.UTC
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "repeat_until must be RFC 3339 or YYYY-MM-DD")
	}
	return day.Add(24*time.Hour - time.Second), nil
}
