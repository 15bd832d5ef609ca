// Package relay carries broadcasts between replicas over Redis Pub/Sub.
// Every replica, the publishing one included, receives each envelope and
// hands it to its local broadcaster.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"go-notification-ws/internal/infrastructure/hub"
	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/infrastructure/metrics"
)

// Relay directions for metrics.
const (
	DirectionOut     = "out"
	DirectionIn      = "in"
	DirectionDropped = "dropped"
)

// Envelope is the wire format on the relay channel.
type Envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// LocalBroadcaster delivers an already serialized payload in this process.
type LocalBroadcaster interface {
	BroadcastRaw(channel string, data []byte) int
}

// Client is the part of *redis.Client the relay uses.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type Redis struct {
	client  Client
	channel string
	local   LocalBroadcaster
	logger  logger.Logger
	metrics *metrics.Metrics
}

var _ hub.Publisher = (*Redis)(nil)

func NewRedis(client Client, channel string, local LocalBroadcaster, m *metrics.Metrics, log logger.Logger) *Redis {
	return &Redis{
		client:  client,
		channel: channel,
		local:   local,
		logger:  log.WithFields(logger.Fields{"component": "relay", "redis_channel": channel}),
		metrics: m,
	}
}

// Publish serializes payload once, wraps it and publishes the envelope.
// Local subscribers get it when it comes back from Redis.
func (r *Redis) Publish(ctx context.Context, channel string, payload any) error {
	data, err := EncodeEnvelope(channel, payload)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	r.metrics.Relay(DirectionOut)
	return nil
}

// Run listens on the relay channel until ctx is done. The Redis client
// reconnects on its own, so an outage only pauses delivery.
func (r *Redis) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			r.logger.Warnf("Failed to close pubsub: %v", err)
		}
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		r.logger.Errorf("Relay subscription not confirmed, will keep retrying: %v", err)
	} else {
		r.logger.Info("Relay subscribed")
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg)
		}
	}
}

func (r *Redis) deliver(msg *redis.Message) {
	env, err := DecodeEnvelope([]byte(msg.Payload))
	if err != nil {
		r.metrics.Relay(DirectionDropped)
		r.logger.Warnf("Dropping relay message: %v", err)
		return
	}
	r.metrics.Relay(DirectionIn)
	r.local.BroadcastRaw(env.Channel, env.Payload)
}

func EncodeEnvelope(channel string, payload any) ([]byte, error) {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal payload for %s: %w", channel, err)
		}
	}

	data, err := json.Marshal(Envelope{Channel: channel, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope for %s: %w", channel, err)
	}
	return data, nil
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Channel == "" || len(env.Payload) == 0 {
		return Envelope{}, errors.New("envelope without channel or payload")
	}
	return env, nil
}
