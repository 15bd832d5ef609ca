package hub

import (
	"context"
	"errors"
	"io"
	"sync"

	"go-notification-ws/internal/infrastructure/logger"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string)                              {}
func (m *mockLogger) Debugf(format string, args ...any)             {}
func (m *mockLogger) Info(msg string)                               {}
func (m *mockLogger) Infof(format string, args ...any)              {}
func (m *mockLogger) Warn(msg string)                               {}
func (m *mockLogger) Warnf(format string, args ...any)              {}
func (m *mockLogger) Error(msg string)                              {}
func (m *mockLogger) Errorf(format string, args ...any)             {}
func (m *mockLogger) Fatal(msg string)                              {}
func (m *mockLogger) Fatalf(format string, args ...any)             {}
func (m *mockLogger) WithField(key string, value any) logger.Logger { return m }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }
func (m *mockLogger) WithContext(ctx context.Context) logger.Logger { return m }
func (m *mockLogger) SetLevel(level logger.Level)                   {}
func (m *mockLogger) SetOutput(output io.Writer)                    {}

type mockConnection struct {
	id  string
	ctx context.Context

	mu       sync.Mutex
	closed   bool
	failSend bool
	sends    int
	received [][]byte
	hooks    []func()
}

func newMockConnection(id string) *mockConnection {
	return &mockConnection{id: id, ctx: context.Background()}
}

func (m *mockConnection) ID() string   { return m.id }
func (m *mockConnection) Type() string { return "mock" }

func (m *mockConnection) Send(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	if m.closed {
		return ErrConnectionClosed
	}
	if m.failSend {
		return errors.New("broken pipe")
	}
	m.received = append(m.received, payload)
	return nil
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	hooks := m.hooks
	m.hooks = nil
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (m *mockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConnection) Context() context.Context { return m.ctx }

func (m *mockConnection) OnClose(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		fn()
		return
	}
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

func (m *mockConnection) messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.received...)
}

func (m *mockConnection) sendAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}

// markClosed flips the liveness flag without running hooks, simulating a
// transport that died before the registry noticed.
func (m *mockConnection) markClosed() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func newRunningHub(t interface {
	Fatalf(string, ...any)
	Cleanup(func())
}) *Hub {
	h := New(&mockLogger{}, nil)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(func() { _ = h.Stop(context.Background()) })
	return h
}
