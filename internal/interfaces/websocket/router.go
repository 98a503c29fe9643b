package websocket

import (
	"github.com/gin-gonic/gin"

	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/port/inbound"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	relay inbound.RelayUseCase,
	rg *gin.RouterGroup,
	connOpts ...hub.ConnectionOption,
) {
	wsHandler := NewWebSocketHandler(hubInstance, relay, logger, connOpts...)

	rg.GET("/ws", wsHandler.Connect)

	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
