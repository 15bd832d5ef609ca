package websocket

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-notification-ws/internal/infrastructure/hub"
	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/pkg/reconnect"
)

func TestAgentResubscribesAfterServerDrop(t *testing.T) {
	env := newTestEnv(t, true)

	var mu sync.Mutex
	var received []reconnect.Message
	log := logger.NewLogrusLogger(&logger.Config{Level: logger.LevelError, Output: "stderr"})
	log.SetOutput(io.Discard)

	agent, err := reconnect.New(reconnect.Config{
		URL:     env.url("/ws"),
		Channel: hub.EntityChannel("7"),
		Backoff: 50 * time.Millisecond,
	}, reconnect.StaticToken("good-agent"), func(m reconnect.Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	}, log)
	require.NoError(t, err)
	require.NoError(t, agent.Start(context.Background()))
	t.Cleanup(func() { _ = agent.Close() })

	subscriber := func() hub.Connection {
		subs := env.hub.Subscribers("vm:7")
		if len(subs) != 1 {
			return nil
		}
		return subs[0]
	}
	require.Eventually(t, func() bool { return subscriber() != nil }, 2*time.Second, 10*time.Millisecond)
	first := subscriber()

	// Server side drop.
	env.hub.Unregister(first)

	require.Eventually(t, func() bool {
		s := subscriber()
		return s != nil && s.ID() != first.ID()
	}, 3*time.Second, 10*time.Millisecond)

	n, err := env.broadcaster.Broadcast("vm:7", hub.VMStarted(map[string]any{"id": "7"}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "vm_started", received[0].Type())
	mu.Unlock()

	require.NoError(t, agent.Close())
	require.Eventually(t, func() bool { return env.hub.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
