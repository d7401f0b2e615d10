package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/bugtracker-backend/internal/metrics"
	"github.com/AnshRaj112/bugtracker-backend/internal/services"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 90 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 4 * 1024
)

// SessionSubscriber is satisfied by *services.SessionEventBus.
type SessionSubscriber interface {
	Subscribe(userID string) *services.Subscription
}

// SessionStreamHandler pushes the caller's session events over a WebSocket.
type SessionStreamHandler struct {
	events   SessionSubscriber
	upgrader websocket.Upgrader
}

// NewSessionStreamHandler accepts upgrades from allowedOrigins and from
// clients that send no Origin header. An empty list allows every origin.
func NewSessionStreamHandler(events SessionSubscriber, allowedOrigins []string) *SessionStreamHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimSpace(o))] = true
	}
	return &SessionStreamHandler{
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				return allowed[strings.ToLower(origin)]
			},
		},
	}
}

// endsSession reports whether the client should drop its tokens after ev.
func endsSession(ev services.SessionEvent) bool {
	switch ev.Type {
	case services.SessionSignedOut, services.SessionPasswordChanged, services.SessionDeactivated:
		return true
	}
	return false
}

// Stream handles GET /api/ws/session. The stream closes after an event that
// ends the session.
func (h *SessionStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	log := zerolog.Ctx(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("session stream upgrade failed")
		return
	}
	defer conn.Close()

	metrics.SessionStreams.Inc()
	defer metrics.SessionStreams.Dec()

	sub := h.events.Subscribe(user.ID.Hex())
	defer sub.Close()

	// Reader: only pongs and close frames are expected.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if endsSession(ev) {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Type))
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
