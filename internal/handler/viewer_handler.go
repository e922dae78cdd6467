package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduschedule-api/internal/service"
	"github.com/noah-isme/eduschedule-api/pkg/response"
)

// ViewerHandler describes the caller as the visibility rules see them.
type ViewerHandler struct{}

// NewViewerHandler constructs handler.
func NewViewerHandler() *ViewerHandler {
	return &ViewerHandler{}
}

// Me godoc
// @Summary Current viewer
// @Tags Viewer
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /me/viewer [get]
func (h *ViewerHandler) Me(c *gin.Context) {
	v := viewerFromContext(c)
	if v == nil {
		return
	}
	response.JSON(c, http.StatusOK, service.Summarize(v), nil)
}
