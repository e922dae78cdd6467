package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/service"
	"github.com/noah-isme/eduschedule-api/internal/visibility"
	"github.com/noah-isme/eduschedule-api/pkg/response"
)

type broadcastService interface {
	CreateBroadcast(ctx context.Context, v visibility.Viewer, req service.BroadcastRequest) (*models.Event, error)
}

// BroadcastHandler publishes announcements as broadcast events.
type BroadcastHandler struct {
	service broadcastService
}

// NewBroadcastHandler constructs handler.
func NewBroadcastHandler(svc broadcastService) *BroadcastHandler {
	return &BroadcastHandler{service: svc}
}

// Create godoc
// @Summary Send a broadcast
// @Description Targets everyone, one role, one batch or one class. Broadcasts never conflict with schedules.
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.BroadcastRequest true "Broadcast payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /broadcasts [post]
func (h *BroadcastHandler) Create(c *gin.Context) {
	v := viewerFromContext(c)
	if v == nil {
		return
	}
	var req service.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	event, err := h.service.CreateBroadcast(c.Request.Context(), v, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}
