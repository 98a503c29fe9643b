package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/infrastructure/metrics"
	"speech-relay/internal/interfaces/rest/v1/handler"
	"speech-relay/internal/interfaces/sse"
	"speech-relay/internal/interfaces/static"
	"speech-relay/internal/interfaces/websocket"
	"speech-relay/internal/port/inbound"
)

type routerConfig struct {
	logger    logger.Logger
	hub       *hub.Hub
	relay     inbound.RelayUseCase
	staticDir string
	// nil disables /metrics
	exporter *metrics.Exporter
	connOpts []hub.ConnectionOption
}

func InitRouter(rc routerConfig) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	if rc.exporter != nil {
		rootGroup.GET("/metrics", gin.WrapH(rc.exporter.Handler()))
	}

	handler.InitRESTRouter(rc.logger, rc.relay, rootGroup)
	sse.InitSSERouter(rc.logger, rc.hub, rc.relay, rootGroup, rc.connOpts...)
	websocket.InitWebSocketRouter(rc.logger, rc.hub, rc.relay, rootGroup, rc.connOpts...)
	static.InitStaticRouter(rc.logger, rc.staticDir, router)

	return router
}
