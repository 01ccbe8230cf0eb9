package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"church-chat-service/internal/directory"
	"church-chat-service/internal/media"
	"church-chat-service/internal/models"
	"church-chat-service/internal/notify"
	"church-chat-service/internal/repositories"
	"church-chat-service/internal/ws"
)

// MessageHandler manages group message and reaction endpoints.
type MessageHandler struct {
	groups    repositories.GroupRepository
	messages  repositories.MessageRepository
	reactions repositories.ReactionRepository
	dir       directory.Directory
	hub       *ws.Hub
	media     media.Store
	notifier  notify.Publisher
	log       *zap.Logger
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(
	groups repositories.GroupRepository,
	messages repositories.MessageRepository,
	reactions repositories.ReactionRepository,
	dir directory.Directory,
	hub *ws.Hub,
	mediaStore media.Store,
	notifier notify.Publisher,
	log *zap.Logger,
) *MessageHandler {
	return &MessageHandler{
		groups:    groups,
		messages:  messages,
		reactions: reactions,
		dir:       dir,
		hub:       hub,
		media:     mediaStore,
		notifier:  notifier,
		log:       log,
	}
}

// messageResponse is a message enriched with sender display fields.
type messageResponse struct {
	models.Message
	SenderName  string  `json:"sender_name,omitempty"`
	SenderPhoto *string `json:"sender_photo,omitempty"`
}

// ListGroupMessages handles GET /groups/:group_id/messages?page&limit.
// Fetches newest-first, returns chronological; marks everything in the group
// not authored by the caller as read.
func (h *MessageHandler) ListGroupMessages(c *gin.Context) {
	groupID, ok := parseIntParam(c, "group_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	member, err := h.groups.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this group"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := h.messages.ListGroupMessages(c.Request.Context(), groupID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	// Newest-first page, chronological for the client.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if err := h.messages.MarkGroupMessagesRead(c.Request.Context(), groupID, userID); err != nil {
		h.log.Warn("mark read failed", zap.Int("group_id", groupID), zap.Error(err))
	}

	resp, err := h.enrich(c, msgs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// SendGroupMessage handles POST /groups/:group_id/messages (multipart:
// `message`, optional `media`). Attachments require a privileged directory
// role or the in-group admin role; plain members send text only.
func (h *MessageHandler) SendGroupMessage(c *gin.Context) {
	groupID, ok := parseIntParam(c, "group_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	role, err := h.groups.MemberRole(c.Request.Context(), groupID, userID)
	if errors.Is(err, repositories.ErrNotMember) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this group"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}

	body := strings.TrimSpace(c.PostForm("message"))
	fileHeader, fileErr := c.FormFile("media")
	hasMedia := fileErr == nil && fileHeader != nil
	if body == "" && !hasMedia {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message text or media required"})
		return
	}

	sender, err := h.dir.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "directory lookup failed"})
		return
	}

	params := repositories.CreateMessageParams{GroupID: &groupID, SenderID: userID}
	if body != "" {
		params.Body = &body
	}
	if hasMedia {
		if role != models.RoleAdmin && !sender.HasPrivilegedRole() {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		url, mediaType, err := h.storeUpload(c, fileHeader)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store media"})
			return
		}
		params.MediaURL = &url
		params.MediaType = &mediaType
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	resp := messageResponse{Message: msg, SenderName: sender.FullName, SenderPhoto: sender.PhotoURL}
	h.hub.BroadcastToRoom(ws.GroupRoom(groupID), models.EventSendMessage, resp, nil)

	_ = h.notifier.Publish(c.Request.Context(), notify.KeyGroupMessage, notify.Envelope{
		SchemaVersion: 1,
		Type:          "group_message",
		OccurredAt:    msg.CreatedAt,
		GroupID:       &groupID,
		SenderID:      userID,
		SenderName:    sender.FullName,
		Preview:       previewOf(msg),
	})

	c.JSON(http.StatusCreated, gin.H{"message": resp})
}

// DeleteGroupMessage handles DELETE /groups/:group_id/messages/:message_id.
// Sender only; reactions cascade with the row and stored media is removed
// best-effort.
func (h *MessageHandler) DeleteGroupMessage(c *gin.Context) {
	groupID, ok := parseIntParam(c, "group_id")
	if !ok {
		return
	}
	messageID, ok := parseIntParam(c, "message_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	if msg.GroupID == nil || *msg.GroupID != groupID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to group"})
		return
	}
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only sender may delete"})
		return
	}

	if err := h.messages.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		return
	}

	if msg.MediaURL != nil {
		if err := h.media.Remove(c.Request.Context(), *msg.MediaURL); err != nil {
			h.log.Warn("media removal failed", zap.String("url", *msg.MediaURL), zap.Error(err))
		}
	}

	h.hub.BroadcastToRoom(ws.GroupRoom(groupID), "message-deleted", gin.H{"message_id": messageID}, nil)
	c.Status(http.StatusNoContent)
}

// ToggleReaction handles POST /messages/:message_id/reactions. Inserts the
// (message, user, emoji) row if absent, removes it if present.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	messageID, ok := parseIntParam(c, "message_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	var req struct {
		Reaction string `json:"reaction" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	if msg.GroupID != nil {
		member, err := h.groups.IsMember(c.Request.Context(), *msg.GroupID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this group"})
			return
		}
	} else if msg.SenderID != userID && (msg.ReceiverID == nil || *msg.ReceiverID != userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	active, err := h.reactions.ToggleReaction(c.Request.Context(), messageID, userID, req.Reaction)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not toggle reaction"})
		return
	}

	payload := gin.H{"message_id": messageID, "user_id": userID, "reaction": req.Reaction, "active": active}
	if msg.GroupID != nil {
		h.hub.BroadcastToRoom(ws.GroupRoom(*msg.GroupID), "reaction", payload, nil)
	}
	c.JSON(http.StatusOK, payload)
}
