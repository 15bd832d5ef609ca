package hub

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/infrastructure/metrics"
)

var (
	ErrHubNotRunning    = errors.New("hub is not running")
	ErrConnectionClosed = errors.New("connection is closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

type entry struct {
	conn     Connection
	channels map[string]struct{}
}

// Hub is the connection registry: every live connection and the set of
// channel names it subscribed to. All access goes through mu.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*entry
	// subscribers indexes channel -> connection id -> connection and is kept
	// in step with each entry's channel set.
	subscribers map[string]map[string]Connection

	running   bool
	runningMu sync.RWMutex

	logger  logger.Logger
	metrics *metrics.Metrics
}

// ConnectionInfo describes one registered connection.
type ConnectionInfo struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

// New creates a new Hub instance. m may be nil.
func New(logger logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		connections: make(map[string]*entry),
		subscribers: make(map[string]map[string]Connection),
		logger:      logger.WithField("component", "hub"),
		metrics:     m,
	}
}

// Start marks the hub as accepting connections.
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return errors.New("hub is already running")
	}
	h.running = true

	h.logger.Info("Hub started successfully")
	return nil
}

// Stop refuses new connections and closes every registered one. Each close
// unregisters itself, so the registry is empty when Stop returns.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	if !h.running {
		h.runningMu.Unlock()
		return nil
	}
	h.running = false
	h.runningMu.Unlock()

	for _, conn := range h.GetConnections() {
		if err := conn.Close(); err != nil {
			h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
		h.Unregister(conn)
	}

	h.logger.Info("Hub stopped successfully")
	return nil
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// Register adds conn with an empty subscription set. Registering a
// connection that is already present is a no-op.
func (h *Hub) Register(conn Connection) error {
	added, err := h.insert(conn)
	if err != nil || !added {
		return err
	}

	h.metrics.ConnectionOpened(conn.Type())
	h.logger.Infof("Connection %s registered (type: %s)", conn.ID(), conn.Type())

	// Runs immediately if conn closed while we were registering it.
	conn.OnClose(func() { h.Unregister(conn) })
	return nil
}

// insert adds conn while holding the running read lock, so Stop cannot
// take its snapshot between the running check and the insert.
func (h *Hub) insert(conn Connection) (bool, error) {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if !h.running {
		return false, ErrHubNotRunning
	}
	if conn.IsClosed() {
		return false, ErrConnectionClosed
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.connections[conn.ID()]; exists {
		return false, nil
	}
	h.connections[conn.ID()] = &entry{
		conn:     conn,
		channels: make(map[string]struct{}),
	}
	return true, nil
}

// Unregister removes conn and its subscriptions and closes the transport.
// Safe to call more than once and for connections never registered.
func (h *Hub) Unregister(conn Connection) {
	h.mu.Lock()
	e, exists := h.connections[conn.ID()]
	if exists && e.conn == conn {
		delete(h.connections, conn.ID())
		for channel := range e.channels {
			h.removeSubscriberLocked(channel, conn.ID())
		}
	} else {
		exists = false
	}
	h.mu.Unlock()

	if !exists {
		return
	}

	h.metrics.ConnectionClosed(conn.Type())
	_ = conn.Close()
	h.logger.Infof("Connection %s unregistered", conn.ID())
}

// Subscribe adds channel to conn's subscription set. No-op for unknown
// connections.
func (h *Hub) Subscribe(conn Connection, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.connections[conn.ID()]
	if !ok || e.conn != conn {
		return
	}
	e.channels[channel] = struct{}{}

	subs, ok := h.subscribers[channel]
	if !ok {
		subs = make(map[string]Connection)
		h.subscribers[channel] = subs
	}
	subs[conn.ID()] = conn
}

// Unsubscribe removes channel from conn's subscription set. No-op for
// unknown connections.
func (h *Hub) Unsubscribe(conn Connection, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.connections[conn.ID()]
	if !ok || e.conn != conn {
		return
	}
	delete(e.channels, channel)
	h.removeSubscriberLocked(channel, conn.ID())
}

func (h *Hub) removeSubscriberLocked(channel, connID string) {
	subs, ok := h.subscribers[channel]
	if !ok {
		return
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(h.subscribers, channel)
	}
}

// Subscribers returns a snapshot of the connections subscribed to channel.
// Later registry changes do not affect the returned slice.
func (h *Hub) Subscribers(channel string) []Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subscribers[channel]
	out := make([]Connection, 0, len(subs))
	for _, conn := range subs {
		out = append(out, conn)
	}
	return out
}

// Channels returns the sorted channel names conn is subscribed to.
func (h *Hub) Channels(conn Connection) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.connections[conn.ID()]
	if !ok || e.conn != conn {
		return nil
	}
	return sortedKeys(e.channels)
}

// GetConnection returns a connection by ID
func (h *Hub) GetConnection(connID string) (Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, exists := h.connections[connID]
	if !exists {
		return nil, false
	}
	return e.conn, true
}

// GetConnections returns all registered connections
func (h *Hub) GetConnections() []Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	connections := make([]Connection, 0, len(h.connections))
	for _, e := range h.connections {
		connections = append(connections, e.conn)
	}
	return connections
}

// Snapshot describes every registered connection, ordered by ID.
func (h *Hub) Snapshot() []ConnectionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ConnectionInfo, 0, len(h.connections))
	for id, e := range h.connections {
		infos = append(infos, ConnectionInfo{
			ID:       id,
			Type:     e.conn.Type(),
			Channels: sortedKeys(e.channels),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// ConnectionCount returns the number of registered connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
