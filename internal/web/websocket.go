package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"breakout-trader/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from the same process; any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket streams snapshots to one client: the latest on connect,
// then every snapshot the hub fans out, until either side goes away.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s.clientDelta(1)
	defer s.clientDelta(-1)

	id := fmt.Sprintf("ws-%s", c.ClientIP())
	sub := s.cfg.Snapshots.Subscribe(id)
	defer s.cfg.Snapshots.Unsubscribe(sub)

	logger := s.logger.With().Str("client", c.ClientIP()).Logger()
	logger.Info().Int("clients", s.Clients()).Msg("Dashboard connected")
	defer logger.Info().Msg("Dashboard disconnected")

	if snap, ok := s.cfg.Snapshots.Latest(); ok {
		if err := writeSnapshot(conn, snap); err != nil {
			return
		}
	}

	// The reader only services control frames and notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
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

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case snap, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
				return
			}
			if err := writeSnapshot(conn, snap); err != nil {
				logger.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap models.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}
