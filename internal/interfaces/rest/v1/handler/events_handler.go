package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/port/inbound"
)

// OriginREST marks events that entered the relay over HTTP.
const OriginREST = "rest"

type EventsHandler struct {
	relay  inbound.RelayUseCase
	logger logger.Logger
}

type PublishEventRequest struct {
	Event string          `json:"event" binding:"required"`
	Data  json.RawMessage `json:"data"`
}

func NewEventsHandler(relay inbound.RelayUseCase, logger logger.Logger) *EventsHandler {
	return &EventsHandler{
		relay:  relay,
		logger: logger.WithField("handler", "events"),
	}
}

// Publish injects one event into the relay. It is dispatched exactly like an
// event sent by a connected peer, exit included.
func (h *EventsHandler) Publish(c *gin.Context) {
	var req PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event format",
		})
		return
	}

	if len(req.Data) == 0 {
		req.Data = json.RawMessage("null")
	}

	err := h.relay.Publish(c.Request.Context(), OriginREST, req.Event, req.Data)
	switch {
	case err == nil:
	case errors.Is(err, hub.ErrHubNotRunning), errors.Is(err, hub.ErrHubShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	case errors.Is(err, hub.ErrInvalidFrame):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	default:
		h.logger.Errorf("Failed to publish event %s: %v", req.Event, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to publish event",
		})
		return
	}

	status := h.relay.Status()
	h.logger.Infof("Event %s accepted for %d connections", req.Event, status.Connections)

	c.JSON(http.StatusAccepted, gin.H{
		"status":      "accepted",
		"event":       req.Event,
		"connections": status.Connections,
	})
}
