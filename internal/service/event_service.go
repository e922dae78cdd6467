package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/schedule"
	"github.com/noah-isme/eduschedule-api/internal/visibility"
	appErrors "github.com/noah-isme/eduschedule-api/pkg/errors"
)

type eventRepository interface {
	List(ctx context.Context, pred visibility.Predicate, filter models.EventFilter) ([]models.Event, int, error)
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ListByCreatorInRange(ctx context.Context, createdBy string, start, end time.Time) ([]models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	CreateBatch(ctx context.Context, events []*models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
}

type eventCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, change models.EventChange) error
}

const defaultBroadcastDuration = 24 * time.Hour

// EventServiceConfig tunes listing and recurrence limits.
type EventServiceConfig struct {
	CacheTTL        time.Duration
	DefaultPageSize int
	MaxPageSize     int
	MaxOccurrences  int
	Location        *time.Location
}

// EventService manages calendar events and broadcasts on behalf of a viewer.
type EventService struct {
	repo      eventRepository
	cache     eventCache
	publisher eventPublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       EventServiceConfig
	now       func() time.Time
}

// NewEventService constructs the service. cache and publisher may be nil.
func NewEventService(repo eventRepository, cache eventCache, publisher eventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg EventServiceConfig) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = 500
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = schedule.DefaultMaxOccurrences
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	svc := &EventService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	svc.validator.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return models.ParseEventType(fl.Field().String()).Valid()
	})
	svc.validator.RegisterValidation("visibility_scope", func(fl validator.FieldLevel) bool {
		return models.ParseScope(fl.Field().String()).Valid()
	})
	return svc
}

// ListEventsRequest describes filters for listing events.
type ListEventsRequest struct {
	From     *time.Time `json:"from"`
	To       *time.Time `json:"to"`
	Scope    string     `json:"scope" validate:"omitempty,visibility_scope"`
	Types    []string   `json:"types" validate:"omitempty,dive,event_type"`
	Page     int        `json:"page" validate:"omitempty,min=1"`
	PageSize int        `json:"page_size" validate:"omitempty,min=1"`
}

// CreateEventRequest describes create payload. RepeatUntil accepts RFC 3339 or YYYY-MM-DD.
type CreateEventRequest struct {
	Title           string               `json:"title" validate:"required,max=200"`
	Description     *string              `json:"description"`
	StartAt         time.Time            `json:"start_at" validate:"required"`
	EndAt           time.Time            `json:"end_at" validate:"required"`
	Location        *string              `json:"location"`
	EventType       string               `json:"event_type" validate:"required,event_type"`
	VisibilityScope string               `json:"visibility_scope" validate:"omitempty,visibility_scope"`
	TargetClass     *string              `json:"target_class"`
	TargetUser      *string              `json:"target_user"`
	TeacherID       *string              `json:"teacher_id"`
	Metadata        models.EventMetadata `json:"metadata"`
	IsRecurring     bool                 `json:"is_recurring"`
	RepeatUntil     string               `json:"repeat_until" validate:"required_if=IsRecurring true"`
}

// UpdateEventRequest describes update payload. Updates apply to a single stored instance.
type UpdateEventRequest struct {
	Title           string               `json:"title" validate:"required,max=200"`
	Description     *string              `json:"description"`
	StartAt         time.Time            `json:"start_at" validate:"required"`
	EndAt           time.Time            `json:"end_at" validate:"required"`
	Location        *string              `json:"location"`
	EventType       string               `json:"event_type" validate:"required,event_type"`
	VisibilityScope string               `json:"visibility_scope" validate:"omitempty,visibility_scope"`
	TargetClass     *string              `json:"target_class"`
	TargetUser      *string              `json:"target_user"`
	TeacherID       *string              `json:"teacher_id"`
	Metadata        models.EventMetadata `json:"metadata"`
}

// BroadcastRequest describes a notification pushed to an audience.
type BroadcastRequest struct {
	Title            string     `json:"title" validate:"required,max=200"`
	Message          string     `json:"message" validate:"required"`
	Urgent           bool       `json:"urgent"`
	NotificationType string     `json:"notification_type" validate:"omitempty,max=50"`
	Target           string     `json:"target" validate:"required,oneof=all role batch class"`
	TargetRole       string     `json:"target_role" validate:"required_if=Target role"`
	TargetBatch      string     `json:"target_batch" validate:"required_if=Target batch"`
	TargetClass      string     `json:"target_class" validate:"required_if=Target class"`
	StartAt          *time.Time `json:"start_at"`
	EndAt            *time.Time `json:"end_at"`
}

// ConflictCheckRequest describes a dry-run overlap check for the caller's own schedule.
type ConflictCheckRequest struct {
	StartAt        time.Time `json:"start_at" validate:"required"`
	EndAt          time.Time `json:"end_at" validate:"required"`
	ExcludeEventID string    `json:"exclude_event_id"`
	RepeatUntil    string    `json:"repeat_until"`
}

// ConflictCheckResult reports the first overlapping event, if any.
type ConflictCheckResult struct {
	Conflict         bool          `json:"conflict"`
	Instances        int           `json:"instances"`
	ConflictingEvent *models.Event `json:"conflicting_event,omitempty"`
}

type eventPage struct {
	Events     []models.Event    `json:"events"`
	Pagination models.Pagination `json:"pagination"`
}

// List returns the events v may see, ordered by start time.
func (s *EventService) List(ctx context.Context, v visibility.Viewer, req ListEventsRequest) ([]models.Event, *models.Pagination, error) {
	if v == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err, "invalid list query")
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}

	filter := models.EventFilter{From: req.From, To: req.To, Page: req.Page, PageSize: req.PageSize}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = s.cfg.DefaultPageSize
	}
	if filter.PageSize > s.cfg.MaxPageSize {
		filter.PageSize = s.cfg.MaxPageSize
	}
	for _, t := range req.Types {
		filter.Types = append(filter.Types, models.ParseEventType(t))
	}
	pred := visibility.BuildFilterPredicate(v, models.ParseScope(req.Scope))

	key := s.listCacheKey(v, pred, filter)
	if s.cache != nil {
		var cached eventPage
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			pagination := cached.Pagination
			return cached.Events, &pagination, nil
		}
	}

	rows, total, err := s.repo.List(ctx, pred, filter)
	if err != nil {
		s.logger.Error("list events failed", zap.String("viewer_id", v.ViewerID()), zap.Error(err))
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	events := visibility.FilterVisible(v, rows)
	if hidden := len(rows) - len(events); hidden > 0 {
		s.metrics.RecordHiddenRows(hidden)
		total -= hidden
	}
	if total < len(events) {
		total = len(events)
	}

	page := eventPage{Events: events, Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, page, s.cfg.CacheTTL); err != nil {
			s.logger.Debug("cache event listing failed", zap.String("key", key), zap.Error(err))
		}
	}
	return page.Events, &page.Pagination, nil
}

func (s *EventService) listCacheKey(v visibility.Viewer, pred visibility.Predicate, filter models.EventFilter) string {
	parts := []string{string(v.Role()), v.Batch(), string(pred.ScopeHint), strconv.Itoa(filter.Page), strconv.Itoa(filter.PageSize)}
	if pred.Class != nil {
		parts = append(parts, strings.Join(pred.Class.ClassIDs, ","))
	}
	if filter.From != nil {
		parts = append(parts, "from="+filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		parts = append(parts, "to="+filter.To.UTC().Format(time.RFC3339))
	}
	for _, t := range filter.Types {
		parts = append(parts, "type="+string(t))
	}
	return EventListKey(v.ViewerID(), parts...)
}

// Get returns a single event. Events the viewer cannot see are reported as not found.
func (s *EventService) Get(ctx context.Context, v visibility.Viewer, id string) (*models.Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get event")
	}
	if !visibility.IsVisible(v, *event) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return event, nil
}

// Create stores a new event, or every weekly instance of a recurring one. Either all instances
// are stored or none.
func (s *EventService) Create(ctx context.Context, v visibility.Viewer, req CreateEventRequest) ([]models.Event, error) {
	if v == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid event payload")
	}

	base := models.Event{
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		Location:        req.Location,
		EventType:       models.ParseEventType(req.EventType),
		CreatedBy:       v.ViewerID(),
		CreatedByRole:   v.Role(),
		TargetClass:     trimmed(req.TargetClass),
		TargetUser:      trimmed(req.TargetUser),
		TeacherID:       trimmed(req.TeacherID),
		VisibilityScope: models.ParseScope(req.VisibilityScope),
		Metadata:        req.Metadata,
	}
	if err := s.checkWrite(v, &base); err != nil {
		return nil, err
	}

	instances := []models.Event{base}
	if req.IsRecurring {
		until, err := schedule.ParseRepeatUntil(req.RepeatUntil, s.cfg.Location)
		if err != nil {
			return nil, err
		}
		instances, err = schedule.Expander{MaxOccurrences: s.cfg.MaxOccurrences}.Expand(base, until)
		if err != nil {
			return nil, err
		}
		if len(instances) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "repeat_until is before start_at")
		}
		seriesID := uuid.NewString()
		for i := range instances {
			instances[i].SeriesID = &seriesID
		}
	}

	if !base.EventType.IsBroadcast() {
		if err := s.rejectConflicts(ctx, base.CreatedBy, instances, ""); err != nil {
			return nil, err
		}
	}

	if err := s.store(ctx, instances); err != nil {
		return nil, err
	}
	if req.IsRecurring {
		s.metrics.ObserveRecurrence(len(instances))
	}
	s.afterWrite(ctx, models.EventCreated, instances...)
	return instances, nil
}

// Update replaces the mutable fields of an event owned by v, or any event when v is an admin.
func (s *EventService) Update(ctx context.Context, v visibility.Viewer, id string, req UpdateEventRequest) (*models.Event, error) {
	if v == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid event payload")
	}
	existing, err := s.Get(ctx, v, id)
	if err != nil {
		return nil, err
	}
	if err := visibility.AuthorizeMutation(v, *existing); err != nil {
		return nil, err
	}

	updated := *existing
	updated.Title = strings.TrimSpace(req.Title)
	updated.Description = req.Description
	updated.StartAt = req.StartAt
	updated.EndAt = req.EndAt
	updated.Location = req.Location
	updated.EventType = models.ParseEventType(req.EventType)
	updated.VisibilityScope = models.ParseScope(req.VisibilityScope)
	updated.TargetClass = trimmed(req.TargetClass)
	updated.TargetUser = trimmed(req.TargetUser)
	updated.TeacherID = trimmed(req.TeacherID)
	updated.Metadata = req.Metadata
	if err := s.checkWrite(v, &updated); err != nil {
		return nil, err
	}
	if !updated.EventType.IsBroadcast() {
		if err := s.rejectConflicts(ctx, updated.CreatedBy, []models.Event{updated}, updated.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		s.logger.Error("update event failed", zap.String("event_id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	s.afterWrite(ctx, models.EventUpdated, updated)
	return &updated, nil
}

// Delete removes an event owned by v, or any event when v is an admin.
func (s *EventService) Delete(ctx context.Context, v visibility.Viewer, id string) error {
	if v == nil {
		return appErrors.ErrUnauthorized
	}
	existing, err := s.Get(ctx, v, id)
	if err != nil {
		return err
	}
	if err := visibility.AuthorizeMutation(v, *existing); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		s.logger.Error("delete event failed", zap.String("event_id", id), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	s.afterWrite(ctx, models.EventDeleted, *existing)
	return nil
}

// CreateBroadcast stores a notification as a broadcast event targeted through its scope and
// metadata. Broadcasts do not occupy the creator's schedule and skip overlap checks.
func (s *EventService) CreateBroadcast(ctx context.Context, v visibility.Viewer, req BroadcastRequest) (*models.Event, error) {
	if v == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid broadcast payload")
	}

	start := s.now().UTC()
	if req.StartAt != nil {
		start = *req.StartAt
	}
	end := start.Add(defaultBroadcastDuration)
	if req.EndAt != nil {
		end = *req.EndAt
	}

	message := strings.TrimSpace(req.Message)
	event := models.Event{
		Title:         strings.TrimSpace(req.Title),
		Description:   &message,
		StartAt:       start,
		EndAt:         end,
		EventType:     models.EventTypeBroadcast,
		CreatedBy:     v.ViewerID(),
		CreatedByRole: v.Role(),
		Metadata: models.EventMetadata{
			IsUrgent:         req.Urgent,
			NotificationType: strings.TrimSpace(req.NotificationType),
		},
	}
	if event.Metadata.NotificationType == "" {
		event.Metadata.NotificationType = "info"
		if req.Urgent {
			event.Metadata.NotificationType = "urgent"
		}
	}

	switch req.Target {
	case "all":
		event.VisibilityScope = models.ScopeAll
	case "role":
		event.VisibilityScope = models.ScopeRole
		event.Metadata.TargetRole = string(models.ParseRole(req.TargetRole))
	case "batch":
		event.VisibilityScope = models.ScopeBatch
		event.Metadata.TargetBatch = strings.TrimSpace(req.TargetBatch)
	case "class":
		event.VisibilityScope = models.ScopeClass
		event.TargetClass = models.StringPtr(req.TargetClass)
		event.EventType = models.EventTypeClassAnnouncement
	}
	if req.Urgent {
		event.EventType = models.EventTypeUrgentBroadcast
	}

	if err := s.checkWrite(v, &event); err != nil {
		return nil, err
	}
	if err := s.store(ctx, []models.Event{event}); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, models.EventCreated, event)
	return &event, nil
}

// CheckConflict reports whether the proposed slot, or its weekly series when RepeatUntil is
// set, overlaps v's existing events. Nothing is stored.
func (s *EventService) CheckConflict(ctx context.Context, v visibility.Viewer, req ConflictCheckRequest) (*ConflictCheckResult, error) {
	if v == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid conflict check payload")
	}
	if err := schedule.ValidateInterval(req.StartAt, req.EndAt); err != nil {
		return nil, err
	}

	instances := []models.Event{{StartAt: req.StartAt, EndAt: req.EndAt}}
	if strings.TrimSpace(req.RepeatUntil) != "" {
		until, err := schedule.ParseRepeatUntil(req.RepeatUntil, s.cfg.Location)
		if err != nil {
			return nil, err
		}
		instances, err = schedule.Expander{MaxOccurrences: s.cfg.MaxOccurrences}.Expand(instances[0], until)
		if err != nil {
			return nil, err
		}
	}

	result := &ConflictCheckResult{Instances: len(instances)}
	found, err := s.findConflict(ctx, v.ViewerID(), instances, req.ExcludeEventID)
	if err != nil {
		return nil, err
	}
	if found != nil {
		result.Conflict = true
		result.ConflictingEvent = found
	}
	return result, nil
}

// checkWrite normalises ev and applies scope validation and the write policy.
func (s *EventService) checkWrite(v visibility.Viewer, ev *models.Event) error {
	visibility.Normalize(ev)
	if err := visibility.Validate(*ev); err != nil {
		return err
	}
	return visibility.AuthorizeWrite(v, *ev)
}

func (s *EventService) rejectConflicts(ctx context.Context, createdBy string, instances []models.Event, excludeID string) error {
	found, err := s.findConflict(ctx, createdBy, instances, excludeID)
	if err != nil {
		return err
	}
	if found != nil {
		s.metrics.RecordScheduleConflict()
		return schedule.ConflictError(*found)
	}
	return nil
}

// findConflict checks every instance against the creator's stored events and against the
// instances before it.
func (s *EventService) findConflict(ctx context.Context, createdBy string, instances []models.Event, excludeID string) (*models.Event, error) {
	if len(instances) == 0 {
		return nil, nil
	}
	first, last := instances[0], instances[len(instances)-1]
	existing, err := s.repo.ListByCreatorInRange(ctx, createdBy, first.StartAt, last.EndAt)
	if err != nil {
		s.logger.Error("load schedule for conflict check failed", zap.String("created_by", createdBy), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule conflicts")
	}
	for _, inst := range instances {
		found, err := schedule.FindConflict(existing, inst.StartAt, inst.EndAt, excludeID)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
		existing = append(existing, inst)
	}
	return nil, nil
}

func (s *EventService) store(ctx context.Context, instances []models.Event) error {
	var err error
	if len(instances) == 1 {
		err = s.repo.Create(ctx, &instances[0])
	} else {
		ptrs := make([]*models.Event, len(instances))
		for i := range instances {
			ptrs[i] = &instances[i]
		}
		err = s.repo.CreateBatch(ctx, ptrs)
	}
	if err != nil {
		s.logger.Error("store events failed", zap.Int("count", len(instances)), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	return nil
}

// afterWrite invalidates cached listings, counts the write and publishes the changes. Failures
// here are logged; the write itself already succeeded.
func (s *EventService) afterWrite(ctx context.Context, kind models.EventChangeKind, events ...models.Event) {
	if len(events) == 0 {
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, EventListKeyPrefix+"*"); err != nil {
			s.logger.Warn("invalidate event listings failed", zap.Error(err))
		}
	}
	s.metrics.RecordEventWrite(string(kind), string(events[0].EventType), len(events))
	if s.publisher == nil {
		return
	}
	occurred := s.now().UTC()
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, models.EventChange{Kind: kind, Event: ev, OccurredAt: occurred}); err != nil {
			s.logger.Warn("publish event change failed", zap.String("event_id", ev.ID), zap.String("kind", string(kind)), zap.Error(err))
		}
	}
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	return models.StringPtr(*p)
}

// validationError wraps validator failures with a field -> rule detail map.
func validationError(err error, message string) *appErrors.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make(map[string]interface{}, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fmt.Sprintf("failed on %s", fe.Tag())
	}
	wrapped := appErrors.WithDetails(appErrors.ErrValidation, message, details)
	wrapped.Err = err
	return wrapped
}
