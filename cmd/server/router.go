package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-notification-ws/internal/infrastructure/auth"
	"go-notification-ws/internal/infrastructure/config"
	"go-notification-ws/internal/infrastructure/hub"
	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/infrastructure/metrics"
	"go-notification-ws/internal/interfaces/rest/middleware"
	"go-notification-ws/internal/interfaces/rest/v1/handler"
	"go-notification-ws/internal/interfaces/sse"
	"go-notification-ws/internal/interfaces/websocket"
	"go-notification-ws/internal/port/inbound"
)

type routerDeps struct {
	cfg           *config.Config
	hub           *hub.Hub
	verifier      auth.Verifier
	notifications inbound.NotificationUseCase
	wsOptions     hub.WebSocketOptions
	metrics       *metrics.Metrics
	log           logger.Logger
}

func InitRouter(d routerDeps) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")
	requireAuth := middleware.BearerAuth(d.verifier, d.log)

	// Health check endpoint
	rootGroup.GET("/hub/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"hub_running": d.hub.IsRunning(),
			"connections": d.hub.ConnectionCount(),
		})
	})
	rootGroup.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	eventHandler := handler.NewEventHandler(d.notifications, d.log)
	apiGroup := rootGroup.Group("/api/v1", requireAuth)
	{
		apiGroup.POST("/events", eventHandler.PublishEvent)
		apiGroup.POST("/vms/:id/events", eventHandler.PublishVMEvent)
	}

	wsHandler := websocket.NewWebSocketHandler(d.hub, d.verifier, d.wsOptions, d.metrics, d.log)
	websocket.InitWebSocketRouter(rootGroup, wsHandler, d.cfg.Server.WSPath, requireAuth)

	if d.cfg.Server.SSEPath != "" {
		sseHandler := sse.NewServerSentEventHandler(
			d.hub, d.verifier, d.cfg.Hub.SendBuffer, d.cfg.Hub.KeepAliveInterval, d.metrics, d.log,
		)
		sse.InitSSERouter(rootGroup, sseHandler, d.cfg.Server.SSEPath)
	}

	return router
}
