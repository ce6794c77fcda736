package api

import (
	"net/http"
	"time"

	"github.com/dancemarket/messaging/eventbus"
	"github.com/dancemarket/messaging/observability"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendQueueSize = 128
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveEvents streams the events of the authenticated user, and every
// profile event, as JSON text frames. Browsers cannot set headers on the
// handshake, so the user id may also be given as the user_id query parameter.
func (a *API) serveEvents(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(HeaderUserID) == "" {
		if id := r.URL.Query().Get("user_id"); id != "" {
			r.Header.Set(HeaderUserID, id)
		}
	}
	user, ok := a.authUser(w, r)
	if !ok {
		return
	}

	send := make(chan Event, sendQueueSize)
	push := func(e Event) {
		select {
		case send <- e:
		default:
			a.Logger.Warn("Event stream queue full, dropping event", "user_id", user.ID, "type", e.Type)
		}
	}

	// Subscribe before the handshake so no event published after it is missed.
	unsubUser := eventbus.Subscribe(a.Bus, UserEvents, func(e Event) {
		if e.UserID == user.ID {
			push(e)
		}
	})
	unsubProfile := eventbus.Subscribe(a.Bus, ProfileEvents, push)
	defer func() {
		unsubUser()
		unsubProfile()
	}()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Error("Could not upgrade connection", "user_id", user.ID, "error", err.Error())
		return
	}

	observability.WebSocketConnections.Inc()
	a.Logger.Info("Event stream connected", "user_id", user.ID)

	done := make(chan struct{})
	go a.writeEvents(conn, send, done)
	a.readUntilClosed(conn)

	close(done)
	observability.WebSocketConnections.Dec()
	a.Logger.Info("Event stream disconnected", "user_id", user.ID)
}

func (a *API) writeEvents(conn *websocket.Conn, send <-chan Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case e := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				a.Logger.Warn("Could not write event", "type", e.Type, "error", err.Error())
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readUntilClosed discards inbound frames until the peer goes away. It keeps
// the read deadline moving on every pong.
func (a *API) readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.Logger.Warn("Event stream closed unexpectedly", "error", err.Error())
			}
			return
		}
	}
}
