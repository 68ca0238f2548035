package devserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/curalink/chatkit/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

// client is one connected websocket participant.
type client struct {
	userID string
	conn   *websocket.Conn
	hub    *hub
	log    zerolog.Logger

	// mu guards closed and every send on the channel, so a concurrent
	// broadcast can never race the channel closing underneath it.
	mu     sync.Mutex
	send   chan transport.Frame
	closed bool
}

func newClient(userID string, conn *websocket.Conn, h *hub, logger zerolog.Logger) *client {
	return &client{
		userID: userID,
		conn:   conn,
		hub:    h,
		log:    logger.With().Str("user", userID).Logger(),
		send:   make(chan transport.Frame, sendBufferSize),
	}
}

func (c *client) readLoop() {
	defer c.close()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("read loop ended")
			return
		}

		var frame transport.Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.log.Debug().Msg("discarding malformed frame")
			continue
		}
		c.route(frame)
	}
}

func (c *client) route(frame transport.Frame) {
	switch frame.Event {
	case transport.EventJoinDirectRoom:
		if id, ok := roomID(frame); ok {
			c.hub.join(c, id, roomDirect)
		}
	case transport.EventLeaveDirectRoom:
		if id, ok := roomID(frame); ok {
			c.hub.leave(c, id)
		}
	case transport.EventJoinGroupRoom:
		if id, ok := roomID(frame); ok {
			c.hub.join(c, id, roomGroup)
		}
	case transport.EventLeaveGroupRoom:
		if id, ok := roomID(frame); ok {
			c.hub.leave(c, id)
		}
	case transport.EventTyping:
		var payload transport.TypingPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return
		}
		payload.UserID = c.userID
		out, err := transport.NewFrame(transport.EventTyping, payload)
		if err != nil {
			return
		}
		c.hub.broadcast(payload.ConversationID, out, c)
	default:
		c.log.Debug().Str("event", frame.Event).Msg("ignoring unknown event")
	}
}

func roomID(frame transport.Frame) (string, bool) {
	var payload transport.RoomPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" {
		return "", false
	}
	return payload.RoomID, true
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
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

// push queues a frame, dropping the oldest queued frame rather than
// blocking when the client cannot keep up.
func (c *client) push(frame transport.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		select {
		case <-c.send:
		default:
		}
		// Pushes are serialized by mu and only the write loop drains,
		// so the freed slot is still available here.
		c.send <- frame
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.hub.detach(c)
	_ = c.conn.Close()
}
