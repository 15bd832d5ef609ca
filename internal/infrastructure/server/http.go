package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go-notification-ws/internal/infrastructure/logger"
)

// HTTPConfig carries the listener address and timeouts.
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type HTTPServer struct {
	handler http.Handler
	cfg     HTTPConfig
	logger  logger.Logger

	mu  sync.Mutex
	srv *http.Server
	// ready is closed once the listener is bound.
	ready chan struct{}
	addr  net.Addr
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, cfg HTTPConfig, log logger.Logger) *HTTPServer {
	srv := &HTTPServer{
		handler: handler,
		cfg:     cfg,
		logger:  log.WithField("component", "http_server"),
		ready:   make(chan struct{}),
	}
	return srv
}

// Start binds the listener and serves until Stop. It returns nil after a
// graceful shutdown.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.srv = &http.Server{
		Handler: h.handler,
		// Long-lived upgrades must not inherit a write timeout; zero
		// disables it.
		ReadTimeout:  h.cfg.ReadTimeout,
		WriteTimeout: h.cfg.WriteTimeout,
		IdleTimeout:  h.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	h.addr = ln.Addr()
	srv := h.srv
	h.mu.Unlock()
	close(h.ready)

	h.logger.Infof("HTTP server listening on %s", ln.Addr())

	var eg errgroup.Group
	eg.Go(func() error {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

// Addr blocks until the listener is bound and returns its address.
func (h *HTTPServer) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-h.ready:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.srv
	h.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
