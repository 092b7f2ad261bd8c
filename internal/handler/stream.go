package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	streamBuffer   = 16
)

func (h *Handler) upgrader() *websocket.Upgrader {
	cors := DefaultCORSConfig(h.AllowedOrigins)
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || cors.allowed(origin)
		},
	}
}

// Stream handles GET /api/auth/stream
// Upgrades to a WebSocket and pushes every settled session state, starting
// with the current one. Clients only listen; anything they send is dropped.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	log := h.log.With(zap.String("remote_addr", conn.RemoteAddr().String()))
	log.Debug("session stream connected")

	states := make(chan session.State, streamBuffer)
	done := make(chan struct{})
	push := func(s session.State) {
		select {
		case states <- s:
		case <-done:
		default:
			log.Warn("session stream too slow, dropping state", zap.String("status", string(s.Status)))
		}
	}
	push(h.Deps.Session.Snapshot())
	unsubscribe := h.Deps.Session.Subscribe(push)

	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		_ = conn.Close()
		log.Debug("session stream closed")
	}()

	for {
		select {
		case s := <-states:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(s); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
