package handler

import (
	"github.com/gin-gonic/gin"

	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/port/inbound"
)

func InitRESTRouter(logger logger.Logger, relay inbound.RelayUseCase, rg *gin.RouterGroup) {
	statusHandler := NewStatusHandler(relay, logger)
	rg.GET("/hub/status", statusHandler.HubStatus)
	rg.GET("/healthz", statusHandler.Healthz)

	eventsHandler := NewEventsHandler(relay, logger)
	apiGroup := rg.Group("/api/v1")
	{
		apiGroup.POST("/events", eventsHandler.Publish)
	}
}
