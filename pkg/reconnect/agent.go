// Package reconnect keeps a WebSocket subscription to one channel alive.
//
// An Agent moves through Disconnected, Connecting, Subscribing and
// Connected. Any close or error sends it back to Disconnected, and a
// single timer brings it to Connecting again after a fixed back-off.
package reconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"go-notification-ws/internal/infrastructure/logger"
)

const (
	DefaultBackoff = 3 * time.Second
	// DefaultReadTimeout is longer than the server's ping period, so a
	// healthy link always sees a ping before the deadline.
	DefaultReadTimeout = 75 * time.Second
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TokenSupplier returns a currently valid bearer token, or an error when
// no session exists.
type TokenSupplier interface {
	Token(ctx context.Context) (string, error)
}

type TokenSupplierFunc func(ctx context.Context) (string, error)

func (f TokenSupplierFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken supplies the same token on every attempt.
func StaticToken(token string) TokenSupplier {
	return TokenSupplierFunc(func(context.Context) (string, error) {
		if token == "" {
			return "", errors.New("no token configured")
		}
		return token, nil
	})
}

// Message is one parsed inbound payload.
type Message map[string]any

// Type returns the payload discriminator, or "" when missing.
func (m Message) Type() string {
	t, _ := m["type"].(string)
	return t
}

type Handler func(msg Message)

type Config struct {
	// URL of the WebSocket endpoint, without the token parameter.
	URL     string
	Channel string
	Backoff time.Duration
	// ReadTimeout is how long the link may stay silent, pings included,
	// before it is treated as lost.
	ReadTimeout time.Duration
	Dialer      *websocket.Dialer
	// OnStateChange, when set, is called after every transition. It must
	// not block.
	OnStateChange func(State)
}

var ErrAlreadyStarted = errors.New("agent already started")

type Agent struct {
	cfg     Config
	tokens  TokenSupplier
	handler Handler
	logger  logger.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	timer   *time.Timer
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	// wg tracks running attempts so Close can wait them out.
	wg sync.WaitGroup
	// callbacks counts Handler and OnStateChange calls in progress on the
	// attempt goroutine. Close made from one of them must not wait on wg.
	callbacks atomic.Int32
	done      chan struct{}
}

func New(cfg Config, tokens TokenSupplier, handler Handler, log logger.Logger) (*Agent, error) {
	if _, err := url.Parse(cfg.URL); err != nil || cfg.URL == "" {
		return nil, fmt.Errorf("invalid url %q", cfg.URL)
	}
	if cfg.Channel == "" {
		return nil, errors.New("channel is required")
	}
	if tokens == nil || handler == nil {
		return nil, errors.New("token supplier and handler are required")
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	return &Agent{
		cfg:     cfg,
		tokens:  tokens,
		handler: handler,
		done:    make(chan struct{}),
		logger: log.WithFields(logger.Fields{
			"component": "reconnect_agent",
			"channel":   cfg.Channel,
		}),
	}, nil
}

// Start makes the first connection attempt in the background. The agent is
// torn down when ctx is done or Close is called.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started || a.closed {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	a.mu.Unlock()

	go a.attempt()
	go func() {
		<-a.ctx.Done()
		_ = a.Close()
	}()
	return nil
}

// Close cancels any pending reconnect, closes the live transport and waits
// for the running attempt to finish. While a Handler or OnStateChange call is
// in progress, Close made from inside it included, it returns without
// waiting and Done reports when teardown completes. Safe to call more than
// once.
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	conn := a.conn
	a.conn = nil
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}

	if a.callbacks.Load() > 0 {
		go a.finish()
		return nil
	}
	a.finish()
	return nil
}

// Done is closed once Close has torn everything down.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

func (a *Agent) finish() {
	a.wg.Wait()
	a.setState(StateDisconnected)
	a.logger.Info("Agent closed")
	close(a.done)
}

// notify runs a user callback, marking it so a reentrant Close does not
// wait for the goroutine it is running on.
func (a *Agent) notify(fn func()) {
	a.callbacks.Add(1)
	defer a.callbacks.Add(-1)
	fn()
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	changed := a.state != s
	a.state = s
	a.mu.Unlock()

	if changed && a.cfg.OnStateChange != nil {
		a.notify(func() { a.cfg.OnStateChange(s) })
	}
}

// attempt runs one connection from Connecting until the transport drops.
// The caller has already done wg.Add(1).
func (a *Agent) attempt() {
	defer a.wg.Done()

	if a.isClosed() {
		return
	}
	a.setState(StateConnecting)

	token, err := a.tokens.Token(a.ctx)
	if err == nil && token == "" {
		err = errors.New("empty token")
	}
	if err != nil {
		a.logger.Warnf("No credential available, retrying in %s: %v", a.cfg.Backoff, err)
		a.scheduleReconnect()
		return
	}

	conn, resp, err := a.cfg.Dialer.DialContext(a.ctx, a.endpoint(token), nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		a.logger.Warnf("Connection failed, retrying in %s: %v", a.cfg.Backoff, err)
		a.scheduleReconnect()
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = conn.Close()
		return
	}
	a.conn = conn
	a.mu.Unlock()
	a.keepAlive(conn)
	a.setState(StateSubscribing)

	subscribe := map[string]string{"type": "subscribe", "channel": a.cfg.Channel}
	if err := conn.WriteJSON(subscribe); err != nil {
		a.logger.Warnf("Failed to subscribe: %v", err)
		a.dropped(conn)
		return
	}
	a.setState(StateConnected)
	a.logger.Info("Connected and subscribed")

	a.readLoop(conn)
	a.dropped(conn)
}

// keepAlive arms the read deadline and pushes it forward on every ping, so
// a peer that vanishes without closing still ends the read loop.
func (a *Agent) keepAlive(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		_ = conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		return nil
	})
}

func (a *Agent) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !a.isClosed() {
				a.logger.Warnf("Connection lost: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg == nil {
			a.logger.Warnf("Ignoring unparseable message: %v", err)
			continue
		}
		if msg.Type() == "connected" {
			a.logger.Debug("Admission acknowledged")
			continue
		}
		a.notify(func() { a.handler(msg) })
		if a.isClosed() {
			return
		}
	}
}

// dropped releases conn and schedules the next attempt.
func (a *Agent) dropped(conn *websocket.Conn) {
	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
	}
	a.mu.Unlock()

	_ = conn.Close()
	a.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer, replacing any pending one.
func (a *Agent) scheduleReconnect() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	changed := a.state != StateDisconnected
	a.state = StateDisconnected
	a.timer = time.AfterFunc(a.cfg.Backoff, a.fire)
	a.mu.Unlock()

	if changed && a.cfg.OnStateChange != nil {
		a.notify(func() { a.cfg.OnStateChange(StateDisconnected) })
	}
}

func (a *Agent) fire() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.wg.Add(1)
	a.mu.Unlock()

	a.attempt()
}

func (a *Agent) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Agent) endpoint(token string) string {
	u, _ := url.Parse(a.cfg.URL)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
