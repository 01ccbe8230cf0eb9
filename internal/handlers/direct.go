package handlers

import (
	"errors"
	"net/http"
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

// DirectHandler manages one-to-one conversation endpoints.
type DirectHandler struct {
	messages repositories.MessageRepository
	dir      directory.Directory
	hub      *ws.Hub
	media    media.Store
	notifier notify.Publisher
	log      *zap.Logger
}

// NewDirectHandler constructs a DirectHandler.
func NewDirectHandler(
	messages repositories.MessageRepository,
	dir directory.Directory,
	hub *ws.Hub,
	mediaStore media.Store,
	notifier notify.Publisher,
	log *zap.Logger,
) *DirectHandler {
	return &DirectHandler{
		messages: messages,
		dir:      dir,
		hub:      hub,
		media:    mediaStore,
		notifier: notifier,
		log:      log,
	}
}

// conversationResponse is a conversation row enriched with the peer's
// display fields and live presence.
type conversationResponse struct {
	models.Conversation
	UserName  string  `json:"user_name"`
	UserPhoto *string `json:"user_photo,omitempty"`
	Online    bool    `json:"online"`
}

// ListConversations handles GET /direct. Returns the caller's conversation
// partners ordered by most recent message.
func (h *DirectHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	convos, err := h.messages.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	if len(convos) == 0 {
		c.JSON(http.StatusOK, gin.H{"conversations": []conversationResponse{}})
		return
	}

	ids := make([]int, 0, len(convos))
	for _, cv := range convos {
		ids = append(ids, cv.UserID)
	}
	users, err := h.dir.BulkUsers(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "directory lookup failed"})
		return
	}
	byID := make(map[int]directory.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	online := h.hub.ConnectedUsers(ids)

	out := make([]conversationResponse, 0, len(convos))
	for _, cv := range convos {
		resp := conversationResponse{Conversation: cv, Online: online[cv.UserID]}
		if u, ok := byID[cv.UserID]; ok {
			resp.UserName = u.FullName
			resp.UserPhoto = u.PhotoURL
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

// GetThread handles GET /direct/:user_id. Returns the chronological thread
// with the peer and marks their messages to the caller as read.
func (h *DirectHandler) GetThread(c *gin.Context) {
	peerID, ok := parseIntParam(c, "user_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	msgs, err := h.messages.ListDirectMessages(c.Request.Context(), userID, peerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	if err := h.messages.MarkDirectMessagesRead(c.Request.Context(), userID, peerID); err != nil {
		h.log.Warn("mark read failed", zap.Int("peer_id", peerID), zap.Error(err))
	}

	resp, err := enrichMessages(c.Request.Context(), h.dir, msgs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// SendDirect handles POST /direct/:user_id (multipart: `message`, optional
// `media`). Direct attachments are limited to privileged directory roles.
func (h *DirectHandler) SendDirect(c *gin.Context) {
	peerID, ok := parseIntParam(c, "user_id")
	if !ok {
		return
	}
	userID := c.GetInt("userID")
	if peerID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}

	if _, err := h.dir.GetUser(c.Request.Context(), peerID); err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "directory lookup failed"})
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

	params := repositories.CreateMessageParams{ReceiverID: &peerID, SenderID: userID}
	if body != "" {
		params.Body = &body
	}
	if hasMedia {
		if !sender.HasPrivilegedRole() {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		url, mediaType, err := storeUpload(c, h.media, fileHeader)
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
	h.hub.EmitToUser(peerID, models.EventSendMessage, resp)

	_ = h.notifier.Publish(c.Request.Context(), notify.KeyDirectMessage, notify.Envelope{
		SchemaVersion: 1,
		Type:          "direct_message",
		OccurredAt:    msg.CreatedAt,
		ReceiverID:    &peerID,
		SenderID:      userID,
		SenderName:    sender.FullName,
		Preview:       previewOf(msg),
	})

	c.JSON(http.StatusCreated, gin.H{"message": resp})
}
