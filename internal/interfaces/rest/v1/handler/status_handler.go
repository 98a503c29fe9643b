package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/port/inbound"
)

type StatusHandler struct {
	relay  inbound.RelayUseCase
	logger logger.Logger
}

func NewStatusHandler(relay inbound.RelayUseCase, logger logger.Logger) *StatusHandler {
	return &StatusHandler{
		relay:  relay,
		logger: logger.WithField("handler", "status"),
	}
}

// HubStatus reports whether the relay loop runs and who is connected.
func (h *StatusHandler) HubStatus(c *gin.Context) {
	status := h.relay.Status()
	h.logger.Debugf("Hub status check - Running: %v, Connections: %d", status.Running, status.Connections)

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"hub_running":    status.Running,
		"connections":    status.Connections,
		"by_type":        status.ByType,
		"exclude_origin": status.ExcludeOrigin,
	})
}

// Healthz answers 200 while the relay accepts events and 503 otherwise.
func (h *StatusHandler) Healthz(c *gin.Context) {
	if !h.relay.Status().Running {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopped"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
