package handlers

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"church-chat-service/internal/directory"
	"church-chat-service/internal/media"
	"church-chat-service/internal/models"
)

const previewLimit = 120

// parseIntParam reads a positive integer path parameter, writing a 400
// response and returning false when it is malformed.
func parseIntParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

// storeUpload saves one multipart file and reports its public URL and media kind.
func storeUpload(c *gin.Context, store media.Store, fh *multipart.FileHeader) (string, models.MediaType, error) {
	f, err := fh.Open()
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	url, err := store.Save(c.Request.Context(), fh.Filename, f)
	if err != nil {
		return "", "", err
	}
	return url, media.KindForFilename(fh.Filename), nil
}

func (h *MessageHandler) storeUpload(c *gin.Context, fh *multipart.FileHeader) (string, models.MediaType, error) {
	return storeUpload(c, h.media, fh)
}

// previewOf produces the notification preview line for a message.
func previewOf(msg models.Message) string {
	if msg.Body != nil && *msg.Body != "" {
		return truncate(*msg.Body, previewLimit)
	}
	if msg.MediaType != nil {
		switch *msg.MediaType {
		case models.MediaImage:
			return "📷 Photo"
		case models.MediaVideo:
			return "🎬 Video"
		case models.MediaAudio:
			return "🎙️ Audio"
		default:
			return "📎 Attachment"
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}

// enrichMessages joins sender display fields onto messages with one bulk
// directory lookup.
func enrichMessages(ctx context.Context, dir directory.Directory, msgs []models.Message) ([]messageResponse, error) {
	if len(msgs) == 0 {
		return []messageResponse{}, nil
	}

	seen := make(map[int]struct{}, len(msgs))
	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}

	users, err := dir.BulkUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]directory.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp := messageResponse{Message: m}
		if u, ok := byID[m.SenderID]; ok {
			resp.SenderName = u.FullName
			resp.SenderPhoto = u.PhotoURL
		}
		out = append(out, resp)
	}
	return out, nil
}

func (h *MessageHandler) enrich(c *gin.Context, msgs []models.Message) ([]messageResponse, error) {
	return enrichMessages(c.Request.Context(), h.dir, msgs)
}
