package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/infrastructure/metrics"
)

// Broadcaster fans payloads out to the connections subscribed to a channel
// in its Hub. Delivery is best effort and at most once per live connection.
type Broadcaster struct {
	hub     *Hub
	logger  logger.Logger
	metrics *metrics.Metrics
}

var _ Publisher = (*Broadcaster)(nil)

func NewBroadcaster(h *Hub, logger logger.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		hub:     h,
		logger:  logger.WithField("component", "broadcaster"),
		metrics: m,
	}
}

// Broadcast serializes payload once and delivers it to every current
// subscriber of channel. It returns the number of connections the payload
// was queued on.
func (b *Broadcaster) Broadcast(channel string, payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload for %s: %w", channel, err)
	}
	return b.BroadcastRaw(channel, data), nil
}

// BroadcastRaw delivers an already serialized payload. A connection that is
// closed or whose send fails is unregistered and the loop moves on.
func (b *Broadcaster) BroadcastRaw(channel string, data []byte) int {
	b.metrics.Broadcast()

	targets := b.hub.Subscribers(channel)
	delivered := 0
	for _, conn := range targets {
		if conn.IsClosed() {
			b.metrics.Delivery(metrics.DeliverySkipped)
			b.hub.Unregister(conn)
			continue
		}
		if err := conn.Send(data); err != nil {
			b.metrics.Delivery(metrics.DeliveryFailed)
			b.logger.WithField("connection_id", conn.ID()).
				Warnf("Delivery on %s failed, dropping connection: %v", channel, err)
			b.hub.Unregister(conn)
			continue
		}
		b.metrics.Delivery(metrics.DeliveryOK)
		delivered++
	}

	b.logger.Debugf("Broadcast on %s delivered to %d of %d connections", channel, delivered, len(targets))
	return delivered
}

// Publish implements Publisher for single-process deployments.
func (b *Broadcaster) Publish(ctx context.Context, channel string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.Broadcast(channel, payload)
	return err
}
