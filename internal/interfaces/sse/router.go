package sse

import (
	"github.com/gin-gonic/gin"

	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/port/inbound"
)

func InitSSERouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	relay inbound.RelayUseCase,
	rg *gin.RouterGroup,
	connOpts ...hub.ConnectionOption,
) {
	sseHandler := NewServerSentEventHandler(hubInstance, relay, logger, connOpts...)

	// SSE connection endpoint
	sseGroup := rg.Group("/sse")
	sseGroup.GET("", SSEHeadersMiddleware(), sseHandler.Connect)

	// Broadcasting API endpoints
	apiGroup := rg.Group("/api/v1/sse")
	apiGroup.GET("/connections", sseHandler.GetConnections)
	apiGroup.POST("/broadcast", sseHandler.BroadcastMessage)
	apiGroup.POST("/send/:clientId", sseHandler.SendMessage)
}

// SSEHeadersMiddleware sets the headers an event stream needs before the
// first byte is written.
func SSEHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Next()
	}
}
