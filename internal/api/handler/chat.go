package handler

import (
	"net/http"

	"speakroom/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type historyQuery struct {
	Limit  int `form:"limit" binding:"min=0"`
	Offset int `form:"offset" binding:"min=0"`
}

// ListMessages handles GET /api/rooms/:code/messages?limit&offset.
func (h *Handler) ListMessages(c *gin.Context) {
	userID, _ := currentUser(c)
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.abort(c, http.StatusBadRequest, "invalid_request")
		return
	}

	msgs, err := h.Chat.History(c.Request.Context(), c.Param("code"), userID, q.Limit, q.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type postMessageBody struct {
	Text       string             `json:"text"`
	Kind       models.MessageKind `json:"kind"`
	ReceiverID string             `json:"receiver_id"`
}

// PostMessage handles POST /api/rooms/:code/messages.
func (h *Handler) PostMessage(c *gin.Context) {
	userID, userName := currentUser(c)
	var body postMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.abort(c, http.StatusBadRequest, "invalid_request")
		return
	}

	msg, err := h.Chat.Send(c.Request.Context(), models.ChatMessage{
		RoomCode:   c.Param("code"),
		SenderID:   userID,
		SenderName: userName,
		ReceiverID: body.ReceiverID,
		IsPrivate:  body.ReceiverID != "",
		Text:       body.Text,
		Kind:       body.Kind,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type markReadBody struct {
	FromSenderID string `json:"from_sender_id"`
}

// MarkRead handles POST /api/rooms/:code/read.
func (h *Handler) MarkRead(c *gin.Context) {
	userID, _ := currentUser(c)
	var body markReadBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.abort(c, http.StatusBadRequest, "invalid_request")
			return
		}
	}

	n, err := h.Chat.MarkRead(c.Request.Context(), c.Param("code"), userID, body.FromSenderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// UnreadCounts handles GET /api/rooms/:code/unread.
func (h *Handler) UnreadCounts(c *gin.Context) {
	userID, _ := currentUser(c)
	counts, err := h.Chat.UnreadCounts(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
