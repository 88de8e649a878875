package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/events"
	"github.com/getmasq/masq/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients never send payloads; anything beyond a close frame is noise.
	maxInboundSize = 512
)

// Hub streams bus events to WebSocket subscribers on GET /updates.
type Hub struct {
	bus      *events.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHub returns a Hub bridging bus to WebSocket clients.
func NewHub(bus *events.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		bus:    bus,
		logger: logger.With(logging.Component("updates")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API binds to localhost for development use, so
			// cross-origin dashboards are allowed to connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) handleUpdates(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.logger.Debug("subscriber connected", logging.RemoteAddr(conn.RemoteAddr().String()))

	ch, cancel := h.bus.Subscribe()
	done := make(chan struct{})

	go h.readPump(conn, done)
	go h.writePump(conn, ch, cancel, done)
}

// readPump drains the connection so pongs and close frames are
// processed, closing done when the peer goes away.
func (h *Hub) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(maxInboundSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards bus events to the peer and keeps the connection
// alive with pings. It owns the connection teardown.
func (h *Hub) writePump(conn *websocket.Conn, ch <-chan events.Event, cancel func(), done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case e := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				h.logger.Debug("subscriber write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
