package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/port/inbound"
)

type EventHandler struct {
	notifications inbound.NotificationUseCase
	logger        logger.Logger
}

type PublishEventRequest struct {
	Channel string          `json:"channel" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

type PublishVMEventRequest struct {
	Kind string          `json:"kind" binding:"required"`
	VM   json.RawMessage `json:"vm"`
}

func NewEventHandler(notifications inbound.NotificationUseCase, logger logger.Logger) *EventHandler {
	return &EventHandler{
		notifications: notifications,
		logger:        logger.WithField("handler", "events"),
	}
}

func (h *EventHandler) PublishEvent(c *gin.Context) {
	var req PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event format",
		})
		return
	}

	if err := h.notifications.PublishEvent(c.Request.Context(), req.Channel, req.Payload); err != nil {
		if errors.Is(err, inbound.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("Failed to publish event: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to publish event",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "published",
		"channel": req.Channel,
	})
}

// PublishVMEvent handles POST /vms/:id/events.
func (h *EventHandler) PublishVMEvent(c *gin.Context) {
	var req PublishVMEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid vm event format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid vm event format",
		})
		return
	}

	id := c.Param("id")
	if err := h.notifications.PublishVMEvent(c.Request.Context(), req.Kind, id, req.VM); err != nil {
		if errors.Is(err, inbound.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("Failed to publish vm event: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to publish vm event",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "published",
		"kind":   req.Kind,
		"vm_id":  id,
	})
}
