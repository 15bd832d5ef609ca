package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"go-notification-ws/internal/infrastructure/logger"
)

// MessageHandler receives every inbound text frame of a connection.
type MessageHandler func(conn Connection, data []byte)

// WebSocketOptions tunes a WebSocketConnection.
type WebSocketOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PongWait     time.Duration
	ReadLimit    int64
	ControlRate  rate.Limit
	ControlBurst int
}

func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PongWait:     60 * time.Second,
		ReadLimit:    32 * 1024,
		ControlRate:  20,
		ControlBurst: 40,
	}
}

// closeState is shared by both connection types: the closed flag, the
// cancel func and the close hooks.
type closeState struct {
	mu      sync.RWMutex
	closed  bool
	cancel  context.CancelFunc
	onClose []func()
}

// markClosed flips the flag once and returns the hooks to run, or false if
// the connection was already closed. extra runs under the lock.
func (s *closeState) markClosed(extra func()) ([]func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	s.closed = true
	s.cancel()
	if extra != nil {
		extra()
	}
	hooks := s.onClose
	s.onClose = nil
	return hooks, true
}

func (s *closeState) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *closeState) addHook(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// WebSocketConnection implements the Connection interface for WebSocket connections
type WebSocketConnection struct {
	id   string
	conn *websocket.Conn
	opts WebSocketOptions

	ctx   context.Context
	state closeState

	logger    logger.Logger
	onMessage MessageHandler
	limiter   *rate.Limiter

	// send is closed by Close; writePump drains it and then sends the close
	// frame.
	send    chan []byte
	started atomic.Bool
}

var _ Connection = (*WebSocketConnection)(nil)

// NewWebSocketConnection wraps an upgraded conn. Pumps start with Start so
// the caller can register the connection first.
func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	opts WebSocketOptions,
	onMessage MessageHandler,
	logger logger.Logger,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())

	// A zero rate disables control-message limiting.
	limit := opts.ControlRate
	if limit <= 0 {
		limit = rate.Inf
	}

	c := &WebSocketConnection{
		id:        id,
		conn:      conn,
		opts:      opts,
		ctx:       ctx,
		logger:    logger.WithField("connection_id", id),
		onMessage: onMessage,
		limiter:   rate.NewLimiter(limit, opts.ControlBurst),
		send:      make(chan []byte, opts.SendBuffer),
	}
	c.state.cancel = cancel
	return c
}

// Start launches the read and write pumps.
func (c *WebSocketConnection) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.conn.SetReadLimit(c.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	go c.writePump()
	go c.readPump()
}

// ID returns unique connection identifier
func (c *WebSocketConnection) ID() string {
	return c.id
}

// Type returns the connection type
func (c *WebSocketConnection) Type() string {
	return ConnectionTypeWebSocket
}

func (c *WebSocketConnection) Send(payload []byte) error {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()

	if c.state.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the connection and runs the close hooks. The write pump
// sends the close frame and releases the socket.
func (c *WebSocketConnection) Close() error {
	hooks, ok := c.state.markClosed(func() { close(c.send) })
	if !ok {
		return nil
	}
	if !c.started.Load() {
		_ = c.conn.Close()
	}

	c.logger.Info("WebSocket connection closed")
	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (c *WebSocketConnection) IsClosed() bool {
	return c.state.isClosed()
}

func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

func (c *WebSocketConnection) OnClose(fn func()) {
	c.state.addHook(fn)
}

// writePump is the only writer on the socket.
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		_ = c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				return
			}
		}
	}
}

// readPump feeds text frames to onMessage until the peer goes away.
func (c *WebSocketConnection) readPump() {
	defer func() {
		_ = c.Close()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				c.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if !c.limiter.Allow() {
				c.logger.Warn("Control message rate exceeded, dropping message")
				continue
			}
			if c.onMessage != nil {
				c.onMessage(c, data)
			}
		case websocket.BinaryMessage:
			c.logger.Debugf("Ignoring binary message of length %d", len(data))
		}
	}
}

// SSEConnection implements the Connection interface for Server-Sent
// Events. Frames are written by the owning HTTP handler, which drains
// Outbound.
type SSEConnection struct {
	id    string
	ctx   context.Context
	state closeState

	send   chan []byte
	logger logger.Logger
}

var _ Connection = (*SSEConnection)(nil)

func NewSSEConnection(ctx context.Context, id string, buffer int, logger logger.Logger) *SSEConnection {
	rctx, cancel := context.WithCancel(ctx)

	c := &SSEConnection{
		id:     id,
		ctx:    rctx,
		send:   make(chan []byte, buffer),
		logger: logger.WithField("connection_id", id),
	}
	c.state.cancel = cancel
	return c
}

func (c *SSEConnection) ID() string {
	return c.id
}

func (c *SSEConnection) Type() string {
	return ConnectionTypeSSE
}

func (c *SSEConnection) Send(payload []byte) error {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()

	if c.state.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Outbound yields queued payloads for the HTTP handler to write.
func (c *SSEConnection) Outbound() <-chan []byte {
	return c.send
}

func (c *SSEConnection) Close() error {
	hooks, ok := c.state.markClosed(nil)
	if !ok {
		return nil
	}

	c.logger.Info("SSE connection closed")
	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (c *SSEConnection) IsClosed() bool {
	return c.state.isClosed()
}

// Context is cancelled when the connection closes or the request ends.
func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

func (c *SSEConnection) OnClose(fn func()) {
	c.state.addHook(fn)
}
