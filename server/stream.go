package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/not-mt/zapd/auth"
	"github.com/not-mt/zapd/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Stream clients only ever
	// send control frames.
	maxMessageSize = 512
)

// streamClient is one websocket subscriber on /api/v1/zaps/stream.
type streamClient struct {
	server *Server
	conn   *websocket.Conn
	send   chan interface{}
	id     string

	closeOnce sync.Once
}

// close shuts the connection down exactly once. The send channel is
// never closed; once the pumps exit, buffered sends are simply dropped
// by the hub's non-blocking fan-out.
func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// handleZapStream serves GET /api/v1/zaps/stream. On connect the client
// receives an engine stats snapshot, then live task updates as the
// worker pool publishes state transitions.
func (s *Server) handleZapStream(w http.ResponseWriter, r *http.Request) {
	// The stream carries tasks for every resource kind, so it needs
	// read permission on every section.
	for _, kind := range s.repos.Kinds() {
		if _, err := s.evaluator.Check(auth.KeyFromRequest(r), string(kind), auth.PermissionRead); err != nil {
			writeError(w, auth.StatusForAuthError(err), err.Error())
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		s.logger.Warnw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	client := &streamClient{
		server: s,
		conn:   conn,
		send:   make(chan interface{}, StreamSendBufferSize),
		id:     uuid.NewString()[:8],
	}

	// Seed the snapshot before the pumps start so it is the first frame.
	if stats, statsErr := s.queue.Stats(r.Context()); statsErr == nil {
		client.send <- EngineStatsMessage{
			Type:        "engine_stats",
			Stats:       stats,
			Metrics:     s.pool.SystemMetrics(r.Context()),
			ServerState: s.State().String(),
			Timestamp:   time.Now().Unix(),
		}
	} else {
		s.logger.Warnw("Stream snapshot unavailable", logger.FieldError, statsErr)
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		client.close()
		return
	}

	go client.writePump()
	client.readPump()
}

// readPump drains inbound frames until the connection dies. Clients
// never send data frames; the read loop exists to process control
// frames and detect disconnects.
func (c *streamClient) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
		}
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump forwards queued messages and keeps the connection alive
// with pings. Exactly one writePump goroutine writes to the conn.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
