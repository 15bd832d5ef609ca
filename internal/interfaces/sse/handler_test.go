package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-notification-ws/internal/infrastructure/auth"
	"go-notification-ws/internal/infrastructure/hub"
	"go-notification-ws/internal/infrastructure/logger"
)

var stubVerifier = auth.VerifierFunc(func(ctx context.Context, token string) (*auth.Principal, error) {
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Principal{Subject: "tester"}, nil
})

func newTestServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewLogrusLogger(&logger.Config{Level: logger.LevelError, Format: "text", Output: "stderr"})
	h := hub.New(log, nil)
	require.NoError(t, h.Start(context.Background()))

	router := gin.New()
	InitSSERouter(router.Group(""), NewServerSentEventHandler(h, stubVerifier, 16, 50*time.Millisecond, nil, log), "/sse")

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		_ = h.Stop(context.Background())
		srv.Close()
	})
	return h, srv
}

// openStream connects and returns a channel of "data:" line contents and of
// comment lines.
func openStream(t *testing.T, url string) (<-chan string, <-chan string, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	data := make(chan string, 16)
	comments := make(chan string, 16)
	go func() {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data:"):
				data <- strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case strings.HasPrefix(line, ":"):
				select {
				case comments <- line:
				default:
				}
			}
		}
	}()
	return data, comments, cancel
}

func next(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func TestConnect_Unauthorized(t *testing.T) {
	h, srv := newTestServer(t)

	for _, query := range []string{"", "?token=bad"} {
		resp, err := http.Get(srv.URL + "/sse" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Equal(t, 0, h.ConnectionCount())
}

func TestConnect_StreamsSubscribedChannels(t *testing.T) {
	h, srv := newTestServer(t)
	data, _, _ := openStream(t, srv.URL+"/sse?token=good&channel=vms&channel=vm:3&channel=")

	assert.Equal(t, `{"type":"connected"}`, next(t, data))
	require.Len(t, h.Snapshot(), 1)
	assert.Equal(t, []string{"vm:3", "vms"}, h.Snapshot()[0].Channels)
	assert.Equal(t, hub.ConnectionTypeSSE, h.Snapshot()[0].Type)

	b := hub.NewBroadcaster(h, logger.NewLogrusLogger(&logger.Config{Level: logger.LevelError, Output: "stderr"}), nil)
	n, err := b.Broadcast("vm:3", hub.VMStarted(map[string]any{"id": "3"}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, `{"type":"vm_started","vm":{"id":"3"}}`, next(t, data))

	n, _ = b.Broadcast("vm:4", hub.VMStarted(nil))
	assert.Equal(t, 0, n)
}

func TestConnect_KeepAlive(t *testing.T) {
	_, srv := newTestServer(t)
	_, comments, _ := openStream(t, srv.URL+"/sse?token=good")

	assert.Equal(t, ": keepalive", next(t, comments))
}

func TestConnect_ClientGoneUnregisters(t *testing.T) {
	h, srv := newTestServer(t)
	data, _, cancel := openStream(t, srv.URL+"/sse?token=good&channel=vms")
	next(t, data)
	require.Equal(t, 1, h.ConnectionCount())

	cancel()

	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.Subscribers("vms"))
}
