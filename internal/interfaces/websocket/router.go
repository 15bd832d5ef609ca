package websocket

import (
	"github.com/gin-gonic/gin"
)

// InitWebSocketRouter mounts the upgrade endpoint at path and the
// connection listing behind requireAuth.
func InitWebSocketRouter(rg *gin.RouterGroup, wsHandler *WebSocketHandler, path string, requireAuth gin.HandlerFunc) {
	// WebSocket connection endpoint
	rg.GET(path, wsHandler.Connect)

	apiGroup := rg.Group("/api/v1/ws", requireAuth)
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
