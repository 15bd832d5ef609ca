package websocket

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-notification-ws/internal/infrastructure/auth"
	"go-notification-ws/internal/infrastructure/hub"
	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/infrastructure/metrics"
)

// WebSocketHandler admits WebSocket clients into the hub.
type WebSocketHandler struct {
	hub      *hub.Hub
	verifier auth.Verifier
	opts     hub.WebSocketOptions
	metrics  *metrics.Metrics
	logger   logger.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler instance. m may be nil.
func NewWebSocketHandler(
	hubInstance *hub.Hub,
	verifier auth.Verifier,
	opts hub.WebSocketOptions,
	m *metrics.Metrics,
	logger logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hubInstance,
		verifier: verifier,
		opts:     opts,
		metrics:  m,
		logger:   logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers authenticate with the token query parameter, so
			// the origin carries no extra trust.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect verifies the token query parameter, upgrades the request and
// registers the new connection. It blocks until the connection closes.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.metrics.Admission(metrics.AdmissionUnavailable)
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	principal, err := auth.SafeVerify(c.Request.Context(), h.verifier, c.Query("token"))
	if err != nil {
		h.reject(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.metrics.Admission(metrics.AdmissionFailed)
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	connID := "ws-" + uuid.NewString()
	log := h.logger.WithFields(logger.Fields{
		"connection_id": connID,
		"subject":       principal.Subject,
	})
	wsConn := hub.NewWebSocketConnection(connID, conn, h.opts, h.hub.HandleControl, h.logger)

	if err := h.hub.Register(wsConn); err != nil {
		h.metrics.Admission(metrics.AdmissionFailed)
		log.Errorf("Failed to register WebSocket connection: %v", err)
		_ = wsConn.Close()
		return
	}

	// Queued before the pumps start, so the ack is the first frame.
	if err := wsConn.Send(hub.ConnectedAck()); err != nil {
		log.Warnf("Failed to queue connected ack: %v", err)
	}
	wsConn.Start()
	h.metrics.Admission(metrics.AdmissionAccepted)
	log.Info("WebSocket connection admitted")

	<-wsConn.Context().Done()
	log.Info("WebSocket connection disconnected")
}

func (h *WebSocketHandler) reject(c *gin.Context, err error) {
	h.metrics.Admission(metrics.AdmissionUnauthorized)
	if errors.Is(err, auth.ErrMissingToken) {
		h.logger.Warnf("Rejecting upgrade from %s: no token", c.ClientIP())
	} else {
		h.logger.Warnf("Rejecting upgrade from %s: %v", c.ClientIP(), err)
	}

	c.Header("Connection", "close")
	c.AbortWithStatus(http.StatusUnauthorized)
}

// GetConnections lists every registered connection with its channels.
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.hub.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connections,
		"hub_running":       h.hub.IsRunning(),
	})
}
