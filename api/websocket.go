package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyeddy/signals/pubsub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards connect from anywhere; CORS is handled upstream.
		return true
	},
}

// handleWebSocket upgrades the connection and streams order updates to
// the client. Each client gets its own subscription: updates published
// before the client connected are missed, never replayed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Error("websocket upgrade failed")
		return
	}

	sub := s.broker.Subscribe()
	remote := conn.RemoteAddr().String()
	s.log.WithField("remote", remote).Info("websocket client connected")

	go s.writePump(conn, sub)
	go s.readPump(conn, sub, remote)
}

// writePump pushes subscription updates and keepalive pings until the
// subscription is cancelled or a write fails.
func (s *Server) writePump(conn *websocket.Conn, sub *pubsub.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case update, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames and detects disconnects. Clients send
// nothing meaningful on this feed; the read loop exists to notice when
// they go away and tear down the subscription.
func (s *Server) readPump(conn *websocket.Conn, sub *pubsub.Subscription, remote string) {
	defer func() {
		sub.Cancel()
		conn.Close()
		s.log.WithField("remote", remote).Info("websocket client disconnected")
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}
