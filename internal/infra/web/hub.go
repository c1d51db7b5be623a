package web

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chat-assistant/internal/domain/model"
	"chat-assistant/internal/infra/logging"
	"chat-assistant/internal/usecase"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxInbound = 512
)

// Hub streams session snapshots to websocket clients. Each connection keeps
// only the newest pending snapshot, so a slow reader never blocks the session.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zerolog.Logger
	conns    atomic.Int64
}

func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger,
	}
}

// Connections reports the number of open sockets.
func (h *Hub) Connections() int64 { return h.conns.Load() }

// Serve upgrades the request and streams sess until either side goes away.
// A closed session ends the stream with a going-away close frame.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sess *usecase.ChatSession) {
	l := logging.With(logging.WithSessID(r.Context(), sess.ID()), h.log)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.conns.Add(1)
	defer h.conns.Add(-1)

	latest := make(chan model.Snapshot, 1)
	push := func(snap model.Snapshot) {
		select {
		case latest <- snap:
		default:
			select {
			case <-latest:
			default:
			}
			select {
			case latest <- snap:
			default:
			}
		}
	}
	cancel := sess.Subscribe(push)
	defer cancel()
	push(sess.Snapshot())

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxInbound)
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

	l.Debug().Msg("websocket connected")
	h.writeLoop(conn, latest, done, l)
	_ = conn.Close()
	<-done
	l.Debug().Msg("websocket disconnected")
}

func (h *Hub) writeLoop(conn *websocket.Conn, latest <-chan model.Snapshot, done <-chan struct{}, l *zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-done:
			return
		case snap := <-latest:
			// the initial snapshot may race a newer published one
			if sent != 0 && snap.Version <= sent {
				continue
			}
			data, err := json.Marshal(snap)
			if err != nil {
				l.Error().Err(err).Msg("encode snapshot")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			sent = snap.Version
			if snap.Closed {
				l.Debug().Msg("session closed; ending stream")
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
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
