package hub

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps what viewers may send. They only send control
	// frames.
	maxMessageSize = 4 * 1024

	// sendBuffer is the per-client queue for JSON events.
	sendBuffer = 64
)

// ErrStopped is returned when registering with a hub that is not running.
var ErrStopped = errors.New("hub: stopped")

// Conn is the part of a websocket connection a Client uses. Both
// *websocket.Conn from gofiber and from gorilla satisfy it.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single websocket connection. JSON events are queued
// in order; binary frames keep only the newest one pending, so a slow viewer
// sees fresh frames instead of a backlog.
type Client struct {
	hub    *Hub
	conn   Conn
	send   chan Message
	frames chan Message

	replaced atomic.Int64
}

// NewClient creates a new client and registers it with the hub
func NewClient(hub *Hub, conn Conn) (*Client, error) {
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, sendBuffer),
		frames: make(chan Message, 1),
	}
	select {
	case hub.register <- client:
		return client, nil
	case <-hub.done:
		return nil, ErrStopped
	}
}

// offerFrame queues a frame, replacing one still pending. Only the hub's
// fan-out calls it, so there is a single writer.
func (c *Client) offerFrame(m Message) {
	select {
	case c.frames <- m:
		return
	default:
	}
	select {
	case <-c.frames:
		c.replaced.Add(1)
	default:
	}
	select {
	case c.frames <- m:
	default:
	}
}

// Replaced returns how many pending frames were superseded before being
// written.
func (c *Client) Replaced() int64 { return c.replaced.Load() }

// Run starts the client's read and write pumps
// This should be called in the websocket handler
func (c *Client) Run() {
	go c.writePump()
	c.readPump() // Blocks until connection closes
}

// readPump reads messages from the websocket connection
// It keeps the connection alive and detects disconnection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients don't send anything; reading detects disconnection and
		// processes pongs.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump writes messages to the websocket connection
// Only this goroutine writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel - send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message.Data); err != nil {
				return
			}

		case frame := <-c.frames:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
