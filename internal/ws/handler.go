package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"church-chat-service/internal/auth"
	"church-chat-service/internal/models"
	"church-chat-service/internal/observability"
	"church-chat-service/internal/repositories"
)

const membershipCheckTimeout = 5 * time.Second

// Handler upgrades realtime connections and drives the per-connection event
// loop. One logical connection per active client; rooms are joined through
// events after the handshake.
type Handler struct {
	hub      *Hub
	groups   repositories.GroupRepository
	verifier *auth.Verifier
	log      *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, groups repositories.GroupRepository, verifier *auth.Verifier, log *zap.Logger) *Handler {
	return &Handler{hub: hub, groups: groups, verifier: verifier, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the handshake, upgrades the connection and registers
// the client. Connections failing verification are rejected before any event
// is processed.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("church-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Query("token")
	if token == "" {
		token = bearerToken(c.GetHeader("Authorization"))
	}

	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, userID, observability.IPFromRequest(c.Request))
	h.hub.Register(client)

	observability.IncWSActive()
	observability.IncWSEvent("connect")
	h.log.Info("websocket connected",
		zap.String("conn_id", client.connID),
		zap.Int("user_id", userID),
		zap.String("ip", client.ip),
		zap.String("request_id", observability.RequestIDFromRequest(c.Request)))

	go h.readLoop(client, conn)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (h *Handler) readLoop(client *Client, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("disconnect")
		h.log.Info("websocket disconnected",
			zap.String("conn_id", client.connID),
			zap.Int("user_id", client.userID),
			zap.Duration("connected_for", time.Since(client.connectedAt)))
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("read_error")
			}
			return
		}

		var ev models.SocketEvent
		if err := json.Unmarshal(payload, &ev); err != nil || ev.Event == "" {
			h.log.Debug("malformed socket event dropped", zap.String("conn_id", client.connID))
			continue
		}
		observability.IncWSEvent(ev.Event)
		h.dispatch(client, ev)
	}
}

// dispatch routes one inbound event. Bad payloads are logged and dropped
// without closing the connection.
func (h *Handler) dispatch(client *Client, ev models.SocketEvent) {
	switch ev.Event {
	case models.EventJoinGroup:
		var p models.GroupEventPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.GroupID <= 0 {
			h.dropEvent(client, ev.Event)
			return
		}
		h.joinGroup(client, p.GroupID)

	case models.EventLeaveGroup:
		var p models.GroupEventPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.GroupID <= 0 {
			h.dropEvent(client, ev.Event)
			return
		}
		h.hub.LeaveRoom(client, GroupRoom(p.GroupID))

	case models.EventJoinRoom:
		var p models.RoomEventPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
			h.dropEvent(client, ev.Event)
			return
		}
		// Group rooms require a membership check; use join-group for those.
		if _, isGroup := parseGroupRoom(p.Room); isGroup {
			h.dropEvent(client, ev.Event)
			return
		}
		h.hub.JoinRoom(client, p.Room)

	case models.EventLeaveRoom:
		var p models.RoomEventPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
			h.dropEvent(client, ev.Event)
			return
		}
		h.hub.LeaveRoom(client, p.Room)

	case models.EventSendMessage, models.EventTyping, models.EventStopTyping,
		models.EventMarkRead, models.EventOffer, models.EventAnswer, models.EventICECandidate:
		h.relayToRoom(client, ev)

	case models.EventCallInvite:
		var p models.CallInvitePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" || len(p.Recipients) == 0 {
			h.dropEvent(client, ev.Event)
			return
		}
		h.hub.InviteCall(client, p)

	case models.EventCallAccept:
		var p models.CallAnswerPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
			h.dropEvent(client, ev.Event)
			return
		}
		h.hub.AcceptCall(client, p.Room)

	case models.EventCallReject:
		var p models.CallAnswerPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
			h.dropEvent(client, ev.Event)
			return
		}
		h.hub.RejectCall(client, p.Room)

	case models.EventCallEnd:
		var p models.CallEndPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
			h.dropEvent(client, ev.Event)
			return
		}
		h.hub.EndCall(p.Room, p.Recipients)

	default:
		h.log.Debug("unknown socket event dropped",
			zap.String("event", ev.Event),
			zap.String("conn_id", client.connID))
	}
}

// joinGroup re-checks persisted membership before subscribing the connection
// to the group room.
func (h *Handler) joinGroup(client *Client, groupID int) {
	ctx, cancel := context.WithTimeout(context.Background(), membershipCheckTimeout)
	defer cancel()

	member, err := h.groups.IsMember(ctx, groupID, client.userID)
	if err != nil {
		h.log.Warn("join-group membership check failed",
			zap.Int("group_id", groupID),
			zap.Int("user_id", client.userID),
			zap.Error(err))
		return
	}
	if !member {
		_ = client.Send(models.EventError, gin.H{"error": "not a member of this group"})
		return
	}
	h.hub.JoinRoom(client, GroupRoom(groupID))
}

// relayToRoom re-broadcasts an event's payload to the room it names,
// excluding the sender. The connection must have joined the room first.
func (h *Handler) relayToRoom(client *Client, ev models.SocketEvent) {
	var p models.RoomEventPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil || p.Room == "" {
		h.dropEvent(client, ev.Event)
		return
	}
	if !h.hub.InRoom(client, p.Room) {
		h.dropEvent(client, ev.Event)
		return
	}
	h.hub.BroadcastToRoom(p.Room, ev.Event, json.RawMessage(ev.Data), client)
}

func (h *Handler) dropEvent(client *Client, event string) {
	h.log.Debug("invalid socket payload dropped",
		zap.String("event", event),
		zap.String("conn_id", client.connID))
}
