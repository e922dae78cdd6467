package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventType classifies a calendar entry.
type EventType string

const (
	EventTypeLesson            EventType = "lesson"
	EventTypeExam              EventType = "exam"
	EventTypeAssignment        EventType = "assignment"
	EventTypeRegularStudy      EventType = "regular_study"
	EventTypeAcademicNotes     EventType = "academic_notes"
	EventTypeBreak             EventType = "break"
	EventTypePrayer            EventType = "prayer"
	EventTypeSports            EventType = "sports"
	EventTypeArts              EventType = "arts"
	EventTypeAdministrative    EventType = "administrative"
	EventTypePersonal          EventType = "personal"
	EventTypeBroadcast         EventType = "broadcast"
	EventTypeUrgentBroadcast   EventType = "urgent_broadcast"
	EventTypeClassAnnouncement EventType = "class_announcement"
)

var eventTypes = map[EventType]struct{}{
	EventTypeLesson: {}, EventTypeExam: {}, EventTypeAssignment: {}, EventTypeRegularStudy: {},
	EventTypeAcademicNotes: {}, EventTypeBreak: {}, EventTypePrayer: {}, EventTypeSports: {},
	EventTypeArts: {}, EventTypeAdministrative: {}, EventTypePersonal: {}, EventTypeBroadcast: {},
	EventTypeUrgentBroadcast: {}, EventTypeClassAnnouncement: {},
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	_, ok := eventTypes[t]
	return ok
}

// IsBroadcast reports whether the type is delivered as a notification.
func (t EventType) IsBroadcast() bool {
	return t == EventTypeBroadcast || t == EventTypeUrgentBroadcast || t == EventTypeClassAnnouncement
}

// VisibilityScope selects the audience of an event.
type VisibilityScope string

const (
	ScopeAll        VisibilityScope = "all"
	ScopeRole       VisibilityScope = "role"
	ScopeClass      VisibilityScope = "class"
	ScopeBatch      VisibilityScope = "batch"
	ScopePersonal   VisibilityScope = "personal"
	ScopeSchoolwide VisibilityScope = "schoolwide"
)

// Valid reports whether s is a known scope.
func (s VisibilityScope) Valid() bool {
	switch s {
	case ScopeAll, ScopeRole, ScopeClass, ScopeBatch, ScopePersonal, ScopeSchoolwide:
		return true
	}
	return false
}

// ParseEventType normalises raw input into an EventType.
func ParseEventType(raw string) EventType {
	return EventType(strings.ToLower(strings.TrimSpace(raw)))
}

// ParseScope normalises raw input into a VisibilityScope.
func ParseScope(raw string) VisibilityScope {
	return VisibilityScope(strings.ToLower(strings.TrimSpace(raw)))
}

// EventMetadata is the free-form JSON bag stored next to an event.
// TargetRole and TargetBatch are legacy targeting keys kept for older rows.
type EventMetadata struct {
	TargetRole       string                 `json:"target_role,omitempty"`
	TargetBatch      string                 `json:"target_batch,omitempty"`
	IsUrgent         bool                   `json:"isUrgent,omitempty"`
	NotificationType string                 `json:"notification_type,omitempty"`
	Extra            map[string]interface{} `json:"-"`
}

var knownMetadataKeys = []string{"target_role", "target_batch", "isUrgent", "notification_type"}

// MarshalJSON writes known keys plus any preserved extra keys.
func (m EventMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.TargetRole != "" {
		out["target_role"] = m.TargetRole
	}
	if m.TargetBatch != "" {
		out["target_batch"] = m.TargetBatch
	}
	if m.IsUrgent {
		out["isUrgent"] = true
	}
	if m.NotificationType != "" {
		out["notification_type"] = m.NotificationType
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads known keys leniently and keeps the rest in Extra.
func (m *EventMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = EventMetadata{}
	m.TargetRole = stringValue(raw["target_role"])
	m.TargetBatch = stringValue(raw["target_batch"])
	m.NotificationType = stringValue(raw["notification_type"])
	switch v := raw["isUrgent"].(type) {
	case bool:
		m.IsUrgent = v
	case string:
		m.IsUrgent = strings.EqualFold(v, "true")
	}
	for _, k := range knownMetadataKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// Value implements driver.Valuer for the jsonb column.
func (m EventMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for the jsonb column.
func (m *EventMetadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = EventMetadata{}
		return nil
	case []byte:
		if len(v) == 0 {
			*m = EventMetadata{}
			return nil
		}
		return m.UnmarshalJSON(v)
	case string:
		if v == "" {
			*m = EventMetadata{}
			return nil
		}
		return m.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

// Event is a scheduled calendar entry or broadcast.
type Event struct {
	ID              string          `db:"id" json:"id"`
	Title           string          `db:"title" json:"title"`
	Description     *string         `db:"description" json:"description,omitempty"`
	StartAt         time.Time       `db:"start_at" json:"start_at"`
	EndAt           time.Time       `db:"end_at" json:"end_at"`
	Location        *string         `db:"location" json:"location,omitempty"`
	EventType       EventType       `db:"event_type" json:"event_type"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	CreatedByRole   UserRole        `db:"created_by_role" json:"created_by_role"`
	TargetClass     *string         `db:"target_class" json:"target_class,omitempty"`
	TargetUser      *string         `db:"target_user" json:"target_user,omitempty"`
	TeacherID       *string         `db:"teacher_id" json:"teacher_id,omitempty"`
	VisibilityScope VisibilityScope `db:"visibility_scope" json:"visibility_scope"`
	Metadata        EventMetadata   `db:"metadata" json:"metadata"`
	IsDeleted       bool            `db:"is_deleted" json:"is_deleted"`
	IsRecurring     bool            `db:"is_recurring" json:"is_recurring"`
	RepeatUntil     *time.Time      `db:"repeat_until" json:"repeat_until,omitempty"`
	SeriesID        *string         `db:"series_id" json:"series_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Duration returns the length of the event.
func (e Event) Duration() time.Duration {
	return e.EndAt.Sub(e.StartAt)
}

// EventFilter narrows an event listing beyond visibility.
type EventFilter struct {
	From     *time.Time
	To       *time.Time
	Types    []EventType
	Page     int
	PageSize int
}

// EventChangeKind describes a mutation published on the change feed.
type EventChangeKind string

const (
	EventCreated EventChangeKind = "created"
	EventUpdated EventChangeKind = "updated"
	EventDeleted EventChangeKind = "deleted"
)

// EventChange is a single mutation delivered to feed subscribers.
type EventChange struct {
	Kind       EventChangeKind `json:"kind"`
	Event      Event           `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// StringPtr returns nil for blank input, otherwise a pointer to the trimmed value.
func StringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
