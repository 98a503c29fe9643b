package sse

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/port/inbound"
)

const keepAliveInterval = 30 * time.Second

// ServerSentEventHandler streams relay events to subscribe-only clients.
type ServerSentEventHandler struct {
	hub      *hub.Hub
	relay    inbound.RelayUseCase
	logger   logger.Logger
	connOpts []hub.ConnectionOption
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	relay inbound.RelayUseCase,
	logger logger.Logger,
	connOpts ...hub.ConnectionOption,
) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:      hubInstance,
		relay:    relay,
		logger:   logger.WithField("handler", "sse"),
		connOpts: connOpts,
	}
}

// Connect handles SSE connection requests
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	w := c.Writer
	conn := hub.NewSSEConnection(c.Request.Context(), hub.NewConnectionID("sse"), h.logger, h.connOpts...)

	if err := h.hub.RegisterConnection(conn); err != nil {
		h.logger.Errorf("Failed to register connection: %v", err)
		_ = conn.Close()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register connection",
		})
		return
	}

	h.logger.Infof("SSE connection %s connected and registered", conn.ID())
	w.WriteHeader(http.StatusOK)
	_ = sse.Encode(w, sse.Event{
		Event: "connected",
		Data: map[string]interface{}{
			"connection_id": conn.ID(),
			"timestamp":     time.Now().Format(time.RFC3339),
		},
	})
	w.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case event := <-conn.Events():
			if err := writeEvent(w, event); err != nil {
				h.logger.Errorf("Failed to write event %s to %s: %v", event.Name, conn.ID(), err)
				_ = conn.Close()
				return
			}
			w.Flush()

		case <-keepAlive.C:
			if _, err := w.WriteString(": keepalive\n\n"); err != nil {
				_ = conn.Close()
				return
			}
			w.Flush()

		case <-conn.Context().Done():
			// the hub may have queued a final exit before closing us
			h.drain(w, conn)
			h.logger.Infof("SSE connection %s disconnected", conn.ID())
			return
		}
	}
}

func (h *ServerSentEventHandler) drain(w gin.ResponseWriter, conn *hub.SSEConnection) {
	for {
		select {
		case event := <-conn.Events():
			if err := writeEvent(w, event); err != nil {
				return
			}
		default:
			w.Flush()
			return
		}
	}
}

// writeEvent streams the payload bytes as they arrived. Passing them as a
// string keeps sse.Encode from re-encoding JSON; line breaks inside the
// payload become extra data: lines.
func writeEvent(w gin.ResponseWriter, event hub.Event) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return sse.Encode(w, sse.Event{Event: event.Name, Data: string(payload)})
}

// SendMessage sends an event to a single connection (for testing/admin purposes)
func (h *ServerSentEventHandler) SendMessage(c *gin.Context) {
	clientID := c.Param("clientId")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Client ID is required",
		})
		return
	}

	var req hub.Frame
	if err := c.ShouldBindJSON(&req); err != nil || req.Event == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	if err := h.relay.SendTo(c.Request.Context(), clientID, req.Event, req.Data); err != nil {
		h.logger.Errorf("Failed to send event to client %s: %v", clientID, err)
		status := http.StatusInternalServerError
		if errors.Is(err, hub.ErrUnknownConnection) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"error": "Failed to send message",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "sent",
		"client_id": clientID,
		"event":     req.Event,
	})
}

// BroadcastMessage feeds an event into the relay as if a connection sent it.
func (h *ServerSentEventHandler) BroadcastMessage(c *gin.Context) {
	var req hub.Frame
	if err := c.ShouldBindJSON(&req); err != nil || req.Event == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	if err := h.relay.Publish(c.Request.Context(), "rest", req.Event, req.Data); err != nil {
		h.logger.Errorf("Failed to broadcast event: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to broadcast message",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "broadcasted",
		"event":       req.Event,
		"connections": h.hub.ConnectionCount(),
	})
}

// GetConnections returns information about connected SSE clients
func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	connections := h.relay.Connections(hub.ConnectionTypeSSE)

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connections,
		"hub_running":       h.hub.IsRunning(),
	})
}
