package realtime

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/trezcool/psms/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 256

	typePing = "ping"
	typePong = "pong"
)

// Client is a websocket connection of an authenticated user.
type Client struct {
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
	logger core.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, logger core.Logger) *Client {
	return &Client{
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, sendBufferSize),
		logger: logger,
	}
}

func (c *Client) UserID() string { return c.userID }

// readPump only answers application pings & detects disconnections; clients send nothing else.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("setting websocket read deadline", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close", err, map[string]interface{}{"user_id": c.userID})
			}
			return
		}
		if msg.Type == typePing {
			c.hub.mu.Lock()
			if _, ok := c.hub.clients[c.userID][c]; ok {
				select {
				case c.send <- Message{Type: typePong}:
				default:
				}
			}
			c.hub.mu.Unlock()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
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

// Start runs the client pumps. The client must be registered first.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
