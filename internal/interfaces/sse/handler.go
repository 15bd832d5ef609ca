package sse

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-notification-ws/internal/infrastructure/auth"
	"go-notification-ws/internal/infrastructure/hub"
	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/infrastructure/metrics"
)

// EventMessage is the SSE event name carrying hub payloads.
const EventMessage = "message"

type ServerSentEventHandler struct {
	hub       *hub.Hub
	verifier  auth.Verifier
	buffer    int
	keepAlive time.Duration
	metrics   *metrics.Metrics
	logger    logger.Logger
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	verifier auth.Verifier,
	buffer int,
	keepAlive time.Duration,
	m *metrics.Metrics,
	logger logger.Logger,
) *ServerSentEventHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &ServerSentEventHandler{
		hub:       hubInstance,
		verifier:  verifier,
		buffer:    buffer,
		keepAlive: keepAlive,
		metrics:   m,
		logger:    logger.WithField("handler", "sse"),
	}
}

// Connect admits a read-only subscriber. Channels come from repeated
// channel query parameters and cannot change for the life of the stream.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
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
		h.metrics.Admission(metrics.AdmissionUnauthorized)
		h.logger.Warnf("Rejecting SSE stream from %s: %v", c.ClientIP(), err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn := hub.NewSSEConnection(c.Request.Context(), "sse-"+uuid.NewString(), h.buffer, h.logger)
	log := h.logger.WithFields(logger.Fields{
		"connection_id": conn.ID(),
		"subject":       principal.Subject,
	})
	defer func() { _ = conn.Close() }()

	if err := h.hub.Register(conn); err != nil {
		h.metrics.Admission(metrics.AdmissionFailed)
		log.Errorf("Failed to register connection: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register connection",
		})
		return
	}
	for _, channel := range c.QueryArray("channel") {
		if strings.TrimSpace(channel) != "" {
			h.hub.Subscribe(conn, channel)
		}
	}

	h.metrics.Admission(metrics.AdmissionAccepted)
	log.Infof("SSE connection admitted on %v", h.hub.Channels(conn))

	w := c.Writer
	setStreamHeaders(c)
	w.WriteHeader(http.StatusOK)
	if err := writeEvent(w, hub.ConnectedAck()); err != nil {
		log.Warnf("Failed to write connected ack: %v", err)
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Context().Done():
			log.Info("SSE connection closed by client")
			return

		case payload := <-conn.Outbound():
			if err := writeEvent(w, payload); err != nil {
				log.Warnf("Failed to write event: %v", err)
				return
			}

		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				log.Warnf("Failed to write keepalive: %v", err)
				return
			}
			w.Flush()
		}
	}
}

func setStreamHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

func writeEvent(w gin.ResponseWriter, payload []byte) error {
	// Data must be a string: sse.Encode would JSON-encode a []byte.
	if err := sse.Encode(w, sse.Event{Event: EventMessage, Data: string(payload)}); err != nil {
		return err
	}
	w.Flush()
	return nil
}
