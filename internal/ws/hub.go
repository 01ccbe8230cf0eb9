package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub owns the runtime connection registry: which connections exist, which
// user each belongs to, and which rooms each has joined. Rooms mirror either
// a persisted group ("group-<id>") or an ephemeral call token. All mutation
// flows through hub methods; nothing outside this package touches the maps.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[int]map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	calls   map[string]*callSession

	inviteTTL time.Duration
	log       *zap.Logger
}

// NewHub creates an empty hub. inviteTTL bounds how long an unanswered call
// invite may stay open before the janitor ends it.
func NewHub(log *zap.Logger, inviteTTL time.Duration) *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		users:     make(map[int]map[*Client]struct{}),
		rooms:     make(map[string]map[*Client]struct{}),
		calls:     make(map[string]*callSession),
		inviteTTL: inviteTTL,
		log:       log,
	}
}

// Register adds an authenticated connection to the registry.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if _, ok := h.users[c.userID]; !ok {
		h.users[c.userID] = make(map[*Client]struct{})
	}
	h.users[c.userID][c] = struct{}{}
}

// Unregister removes a connection from every index and garbage-collects call
// sessions that no longer have any live party.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)

	if conns, ok := h.users[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.userID)
		}
	}

	for room := range c.rooms {
		h.removeFromRoomLocked(c, room)
	}
	c.rooms = map[string]struct{}{}

	h.collectDeadCallsLocked()
}

// JoinRoom subscribes the connection to a room, creating it on demand.
func (h *Hub) JoinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// LeaveRoom unsubscribes the connection from a room.
func (h *Hub) LeaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(c, room)
	delete(c.rooms, room)
}

func (h *Hub) removeFromRoomLocked(c *Client, room string) {
	if conns, ok := h.rooms[room]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether the connection has joined the room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c]
	return ok
}

func (h *Hub) roomClients(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) userClients(userID int) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		conns = append(conns, c)
	}
	return conns
}

// BroadcastToRoom fans an event out to every connection in the room, minus
// the excluded sender. Writes are fire-and-forget; a failed write closes and
// unregisters that connection.
func (h *Hub) BroadcastToRoom(room string, event string, data any, except *Client) {
	for _, c := range h.roomClients(room) {
		if c == except {
			continue
		}
		h.deliver(c, event, data)
	}
}

// EmitToUser sends an event to every live connection of a user and returns
// how many connections were reached.
func (h *Hub) EmitToUser(userID int, event string, data any) int {
	conns := h.userClients(userID)
	for _, c := range conns {
		h.deliver(c, event, data)
	}
	return len(conns)
}

func (h *Hub) deliver(c *Client, event string, data any) {
	if err := c.Send(event, data); err != nil {
		h.log.Warn("websocket write failed",
			zap.String("conn_id", c.connID),
			zap.Int("user_id", c.userID),
			zap.Error(err))
		c.conn.Close()
		h.Unregister(c)
	}
}

// ConnectedUsers reports, for a recipient set, which ids currently have at
// least one live connection.
func (h *Hub) ConnectedUsers(userIDs []int) map[int]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	online := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		online[id] = len(h.users[id]) > 0
	}
	return online
}
