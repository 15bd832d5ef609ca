package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"go-notification-ws/internal/infrastructure/logger"
	"go-notification-ws/internal/infrastructure/metrics"
)

// UpgradeGuard wraps the whole HTTP handler. A WebSocket upgrade request
// for any path other than path gets no response at all: its socket is
// taken over and closed. Everything else goes to next.
func UpgradeGuard(path string, m *metrics.Metrics, log logger.Logger, next http.Handler) http.Handler {
	log = log.WithField("component", "upgrade_guard")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == path || !websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		m.Admission(metrics.AdmissionBadPath)
		log.Warnf("Destroying upgrade request for unknown path %s from %s", r.URL.Path, r.RemoteAddr)

		hj, ok := w.(http.Hijacker)
		if !ok {
			panic(http.ErrAbortHandler)
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			panic(http.ErrAbortHandler)
		}
		_ = conn.Close()
	})
}
