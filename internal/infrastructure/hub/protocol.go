package hub

import (
	"encoding/json"
	"strings"
)

// Control message types sent by clients.
const (
	ControlSubscribe   = "subscribe"
	ControlUnsubscribe = "unsubscribe"
)

// ControlMessage is the client -> server control-plane frame.
type ControlMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// HandleControl applies one inbound control frame from conn. Malformed
// frames and unknown types are logged and dropped; nothing is sent back.
func (h *Hub) HandleControl(conn Connection, raw []byte) {
	log := h.logger.WithField("connection_id", conn.ID())

	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.metrics.ControlMessage("malformed")
		log.Warnf("Discarding malformed control message: %v", err)
		return
	}

	// Names are matched literally; only blank ones are refused.
	channel := msg.Channel
	if strings.TrimSpace(channel) == "" {
		h.metrics.ControlMessage("malformed")
		log.Warnf("Discarding %q control message without channel", msg.Type)
		return
	}

	switch msg.Type {
	case ControlSubscribe:
		h.Subscribe(conn, channel)
		log.Debugf("Subscribed to %s", channel)
	case ControlUnsubscribe:
		h.Unsubscribe(conn, channel)
		log.Debugf("Unsubscribed from %s", channel)
	default:
		h.metrics.ControlMessage("unknown")
		log.Warnf("Discarding control message with unknown type %q", msg.Type)
		return
	}
	h.metrics.ControlMessage(msg.Type)
}
