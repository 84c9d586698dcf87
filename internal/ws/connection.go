package ws

import (
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/yourorg/messenger/internal/hub"
)

const (
	readLimit     = 64 * 1024
	pongWait      = 60 * time.Second
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

// clientFrame is the only inbound shape: join/leave a conversation channel.
type clientFrame struct {
	Action         string `json:"action"` // "join" | "leave"
	ConversationID string `json:"conversation_id"`
}

// Connection pairs one websocket with a hub client and runs the usual
// read/write pumps.
type Connection struct {
	ws     *websocket.Conn
	client *hub.Client
	hub    *hub.Hub
	log    *zap.SugaredLogger
}

func NewConnection(conn *websocket.Conn, userID string, h *hub.Hub, log *zap.SugaredLogger) *Connection {
	return &Connection{
		ws:     conn,
		client: hub.NewClient(userID, 256),
		hub:    h,
		log:    log,
	}
}

// Serve registers with the hub, runs the write pump in the background and
// blocks on the read pump until the peer goes away.
func (c *Connection) Serve() {
	c.hub.AddClient(c.client)
	defer func() {
		c.hub.RemoveClient(c.client)
		close(c.client.Send)
	}()
	go c.writePump()
	c.readPump()
}

func (c *Connection) readPump() {
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Debugw("bad client frame", "user", c.client.UserID, "err", err)
			continue
		}
		switch frame.Action {
		case "join":
			if frame.ConversationID != "" {
				c.hub.JoinConversation(frame.ConversationID, c.client)
			}
		case "leave":
			if frame.ConversationID != "" {
				c.hub.LeaveConversation(frame.ConversationID, c.client)
			}
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case payload, ok := <-c.client.Send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
