package http

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quiz-session-service/internal/app"
)

const wsWriteWait = 10 * time.Second

// WSHandler serves the per-session event channel over WebSocket. The
// subscription itself is unauthenticated by design: quick-quiz participants
// join with zero friction, and mutating operations are gated elsewhere.
type WSHandler struct {
	sessions   *app.SessionService
	subscriber app.Subscriber
	upgrader   websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionService, subscriber app.Subscriber) *WSHandler {
	return &WSHandler{
		sessions:   sessions,
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and forwards the session's events until the
// client disconnects. There is no catch-up delivery: clients that reconnect
// re-fetch current state through the pull endpoints.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	}
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	events, cancel, err := h.subscriber.Subscribe(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Connecting with a display name is a quick-quiz join in itself. Only a
	// completed upgrade counts as joining.
	h.sessions.AnnounceJoin(sessionID, r.URL.Query().Get("name"))

	// Reader goroutine only detects disconnects; the channel is one-way.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
