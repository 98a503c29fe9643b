package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/port/inbound"
)

// WebSocketHandler accepts bidirectional event connections.
type WebSocketHandler struct {
	hub      *hub.Hub
	relay    inbound.RelayUseCase
	logger   logger.Logger
	upgrader websocket.Upgrader
	connOpts []hub.ConnectionOption
}

func NewWebSocketHandler(
	hubInstance *hub.Hub,
	relay inbound.RelayUseCase,
	logger logger.Logger,
	connOpts ...hub.ConnectionOption,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hubInstance,
		relay:  relay,
		logger: logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browser UI, transcriber and translator may be served from anywhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connOpts: connOpts,
	}
}

// Connect upgrades the request and registers the new connection. It never
// rejects a client while the hub is running.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	connID := hub.NewConnectionID("ws")
	wsConn := hub.NewWebSocketConnection(connID, conn, h.hub, h.logger, h.connOpts...)

	if err := h.hub.RegisterConnection(wsConn); err != nil {
		h.logger.Errorf("Failed to register WebSocket connection: %v", err)
		wsConn.Close()
		return
	}

	h.logger.Infof("WebSocket connection %s connected and registered", wsConn.ID())

	<-wsConn.Context().Done()
	h.logger.Infof("WebSocket connection %s disconnected", wsConn.ID())
}

// GetConnections lists the live WebSocket connections.
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.relay.Connections(hub.ConnectionTypeWebSocket)

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connections,
		"hub_running":       h.hub.IsRunning(),
	})
}
