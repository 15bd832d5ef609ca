package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-notification-ws/internal/infrastructure/logger"
)

func TestHTTPServer_StartStop(t *testing.T) {
	log := logger.NewLogrusLogger(&logger.Config{Level: logger.LevelError, Output: "stderr"})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	srv := NewHTTPServer(handler, HTTPConfig{Addr: "127.0.0.1:0", IdleTimeout: time.Second}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	addr, err := srv.Addr(ctx)
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://%s/", addr))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, <-done)
}

func TestHTTPServer_StopBeforeStart(t *testing.T) {
	log := logger.NewLogrusLogger(&logger.Config{Level: logger.LevelError, Output: "stderr"})
	srv := NewHTTPServer(http.NotFoundHandler(), HTTPConfig{Addr: "127.0.0.1:0"}, log)

	assert.NoError(t, srv.Stop(context.Background()))
}

func TestHTTPServer_BadAddr(t *testing.T) {
	log := logger.NewLogrusLogger(&logger.Config{Level: logger.LevelError, Output: "stderr"})
	srv := NewHTTPServer(http.NotFoundHandler(), HTTPConfig{Addr: "not-an-addr"}, log)

	assert.Error(t, srv.Start(context.Background()))
}
