package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/service"
	"github.com/noah-isme/eduschedule-api/internal/visibility"
	"github.com/noah-isme/eduschedule-api/pkg/response"
)

type eventService interface {
	List(ctx context.Context, v visibility.Viewer, req service.ListEventsRequest) ([]models.Event, *models.Pagination, error)
	Get(ctx context.Context, v visibility.Viewer, id string) (*models.Event, error)
	Create(ctx context.Context, v visibility.Viewer, req service.CreateEventRequest) ([]models.Event, error)
	Update(ctx context.Context, v visibility.Viewer, id string, req service.UpdateEventRequest) (*models.Event, error)
	Delete(ctx context.Context, v visibility.Viewer, id string) error
	CheckConflict(ctx context.Context, v visibility.Viewer, req service.ConflictCheckRequest) (*service.ConflictCheckResult, error)
}

// EventHandler manages calendar event endpoints.
type EventHandler struct {
	service eventService
}

// NewEventHandler constructs handler.
func NewEventHandler(svc eventService) *EventHandler {
	return &EventHandler{service: svc}
}

// List godoc
// @Summary List visible events
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param from query string false "Only events ending at or after (RFC 3339)"
// @Param to query string false "Only events starting at or before (RFC 3339)"
// @Param scope query string false "Restrict to one visibility scope"
// @Param types query string false "Comma separated event types"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	v := viewerFromContext(c)
	if v == nil {
		return
	}
	var (
		req service.ListEventsRequest
		err error
	)
	if req.From, err = queryTime(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if req.To, err = queryTime(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	if req.Page, err = queryInt(c, "page"); err != nil {
		response.Error(c, err)
		return
	}
	if req.PageSize, err = queryInt(c, "page_size"); err != nil {
		response.Error(c, err)
		return
	}
	req.Scope = c.Query("scope")
	req.Types = queryList(c, "types")

	events, pagination, err := h.service.List(c.Request.Context(), v, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Get event
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	v := viewerFromContext(c)
	if v == nil {
		return
	}
	event, err := h.service.Get(c.Request.Context(), v, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create event
// @Description Recurring events are expanded weekly until repeat_until and stored as one series.
// @Tags Events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	v := viewerFromContext(c)
	if v == nil {
		return
	}
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	events, err := h.service.Create(c.Request.Context(), v, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, events, map[string]interface{}{"instances": len(events)})
}

// Update godoc
// @Summary Update event
// @Tags Events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Param payload body service.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	v := viewerFromContext(c)
	if v == nil {
		return
	}
	var req service.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	event, err := h.service.Update(c.Request.Context(), v, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete event
// @Tags Events
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	v := viewerFromContext(c)
	if v == nil {
		return
	}
	if err := h.service.Delete(c.Request.Context(), v, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CheckConflict godoc
// @Summary Check a slot against the caller's schedule
// @Tags Events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.ConflictCheckRequest true "Slot"
// @Success 200 {object} response.Envelope
// @Router /events/conflicts [post]
func (h *EventHandler) CheckConflict(c *gin.Context) {
	v := viewerFromContext(c)
	if v == nil {
		return
	}
	var req service.ConflictCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.service.CheckConflict(c.Request.Context(), v, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
