package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const realtimeHeartbeatInterval = 25 * time.Second

type realtimeEventPayload struct {
	CategoryID   uint      `json:"category_id"`
	PreferenceID uint      `json:"preference_id"`
	VoteID       uint      `json:"vote_id"`
	Vote         string    `json:"vote"`
	Timestamp    time.Time `json:"timestamp"`
}

type heartbeatPayload struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// handleCategoryStream streams votes cast in a category as server-sent events.
// A heartbeat is sent immediately once the subscription is active.
func (h *httpHandler) handleCategoryStream(c *gin.Context) {
	categoryID, ok := parseIDParam(c)
	if !ok {
		h.respondInvalidRequest(c, "category id must be a positive integer")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.preferences.GetCategory(ctx, categoryID); err != nil {
		h.respondServiceError(c, err)
		return
	}

	stream, cleanup := h.realtime.Subscribe(ctx, categoryID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Source: realtimeSourceBackend, Timestamp: time.Now().UTC()})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				CategoryID:   message.CategoryID,
				PreferenceID: message.PreferenceID,
				VoteID:       message.VoteID,
				Vote:         message.Vote,
				Timestamp:    message.Timestamp,
			})
			return true
		case now := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Source: realtimeSourceBackend, Timestamp: now.UTC()})
			return true
		}
	})
}
