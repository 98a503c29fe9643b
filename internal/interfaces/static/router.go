package static

import (
	"github.com/gin-gonic/gin"

	"speech-relay/internal/infrastructure/logger"
)

func InitStaticRouter(logger logger.Logger, root string, router *gin.Engine) {
	NewHandler(root, logger).Register(router.Group(""))
	router.NoRoute(NotFound)
}
