package hub

import "context"

const (
	ConnectionTypeWebSocket = "websocket"
	ConnectionTypeSSE       = "sse"
)

// Connection represents any type of live duplex or push transport
// (WebSocket, SSE) owned by the Hub while it is registered.
type Connection interface {
	ID() string
	Type() string
	// Send queues an already serialized payload without blocking. It fails
	// when the connection is closed or its outbound buffer is full.
	Send(payload []byte) error
	Close() error
	IsClosed() bool
	Context() context.Context
	// OnClose registers fn to run once, synchronously, when the connection
	// closes. If it is already closed fn runs immediately.
	OnClose(fn func())
}

// Publisher is implemented by anything that can fan a payload out to a
// channel: the local Broadcaster or a cross-replica relay.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}
