package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/visibility"
)

type feedSubscriber interface {
	Subscribe(v visibility.Viewer) (<-chan models.EventChange, func())
}

// StreamHandler relays the change feed as server-sent events.
type StreamHandler struct {
	feed      feedSubscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewStreamHandler constructs handler. A non-positive heartbeat disables keep-alive comments.
func NewStreamHandler(feed feedSubscriber, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{feed: feed, heartbeat: heartbeat, logger: logger}
}

// Stream godoc
// @Summary Stream event changes
// @Description Server-sent events named created, updated or deleted. Only changes the caller may see are sent.
// @Tags Events
// @Produce text/event-stream
// @Security BearerAuth
// @Param access_token query string false "Token for clients that cannot set headers"
// @Success 200 {string} string "event stream"
// @Router /events/stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	v := viewerFromContext(c)
	if v == nil {
		return
	}
	changes, cancel := h.feed.Subscribe(v)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := c.Request.Context()
	h.logger.Debug("feed subscriber connected", zap.String("viewer_id", v.ViewerID()))
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			c.SSEvent(string(change.Kind), change)
			c.Writer.Flush()
		case <-tick:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
