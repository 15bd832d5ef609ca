package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-notification-ws/internal/application/facade"
	"go-notification-ws/internal/infrastructure/auth"
	"go-notification-ws/internal/infrastructure/config"
	"go-notification-ws/internal/infrastructure/hub"
	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/infrastructure/metrics"
	wsgate "go-notification-ws/internal/interfaces/websocket"
)

func newTestApp(t *testing.T) (*httptest.Server, *hub.Hub, *auth.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	chdir(t, t.TempDir())

	v := config.New("")
	v.Set("auth.secret", "test-secret")
	v.Set("auth.issuer", "dashboard")
	cfg, err := config.Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	log := logger.NewLogrusLogger(&logger.Config{Level: logger.LevelError, Output: "stderr"})
	log.SetOutput(io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	h := hub.New(log, m)
	require.NoError(t, h.Start(context.Background()))

	router := InitRouter(routerDeps{
		cfg:           cfg,
		hub:           h,
		verifier:      auth.NewJWTVerifier(auth.VerifierConfig{Issuer: "dashboard", Secret: "test-secret"}),
		notifications: facade.NewNotificationApplicationService(hub.NewBroadcaster(h, log, m), log),
		wsOptions:     webSocketOptions(cfg.Hub),
		metrics:       m,
		log:           log,
	})
	srv := httptest.NewServer(wsgate.UpgradeGuard(cfg.Server.WSPath, m, log, router))
	t.Cleanup(func() {
		_ = h.Stop(context.Background())
		srv.Close()
	})
	return srv, h, auth.NewJWTManager("dashboard", "", "test-secret")
}

func TestRouter_HubStatus(t *testing.T) {
	srv, _, _ := newTestApp(t)

	resp, err := http.Get(srv.URL + "/hub/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["hub_running"])
	assert.Equal(t, float64(0), body["connections"])
}

func TestRouter_PublishReachesWebSocketSubscriber(t *testing.T) {
	srv, h, jwt := newTestApp(t)
	token, err := jwt.Mint("vm-service", time.Minute)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, ack, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connected"}`, string(ack))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "vms"}))
	require.Eventually(t, func() bool { return len(h.Subscribers("vms")) == 1 }, 2*time.Second, 10*time.Millisecond)

	publish := func(auth string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/events",
			strings.NewReader(`{"channel":"vms","payload":{"type":"vm_deleted","vmId":"4"}}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, publish("").StatusCode)
	assert.Equal(t, http.StatusAccepted, publish("Bearer "+token).StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"vm_deleted","vmId":"4"}`, string(data))
}

func TestRouter_Metrics(t *testing.T) {
	srv, _, _ := newTestApp(t)

	_, _, _ = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `notify_admissions_total{result="unauthorized"} 1`)
}

func TestRouter_VMEventReachesEntitySubscriber(t *testing.T) {
	srv, h, jwt := newTestApp(t)
	token, err := jwt.Mint("vm-service", time.Minute)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "vm:7"}))
	require.Eventually(t, func() bool { return len(h.Subscribers("vm:7")) == 1 }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/vms/7/events",
		strings.NewReader(`{"kind":"vm_started","vm":{"id":"7","status":"running"}}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"vm_started","vm":{"id":"7","status":"running"}}`, string(data))
}
