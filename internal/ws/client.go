package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the slice of *websocket.Conn the hub writes to; tests substitute
// a recording implementation.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one authenticated realtime connection.
type Client struct {
	conn        wsConn
	userID      int
	connID      string
	ip          string
	connectedAt time.Time

	// rooms is guarded by the hub mutex.
	rooms map[string]struct{}

	// writeMu serializes writes; gorilla/websocket allows one writer at a time.
	writeMu sync.Mutex
}

// NewClient wraps an upgraded connection.
func NewClient(conn wsConn, userID int, ip string) *Client {
	return &Client{
		conn:        conn,
		userID:      userID,
		connID:      newConnID(),
		ip:          ip,
		connectedAt: time.Now(),
		rooms:       make(map[string]struct{}),
	}
}

// UserID returns the authenticated identity behind the connection.
func (c *Client) UserID() int {
	return c.userID
}

type outboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Send writes one event envelope to the connection.
func (c *Client) Send(event string, data any) error {
	payload, err := json.Marshal(outboundEvent{Event: event, Data: data})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}
