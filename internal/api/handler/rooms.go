package handler

import (
	"net/http"

	"speakroom/backend/internal/config"

	"github.com/gin-gonic/gin"
)

func roomURL(code string) string {
	return config.RoomURLPrefix + code
}

type createRoomBody struct {
	InviteeID string `json:"invitee_id"`
}

// CreateRoom handles POST /api/rooms.
func (h *Handler) CreateRoom(c *gin.Context) {
	userID, _ := currentUser(c)
	var body createRoomBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.abort(c, http.StatusBadRequest, "invalid_request")
			return
		}
	}

	view, err := h.Coordinator.CreateRoom(c.Request.Context(), userID, body.InviteeID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": view, "room_url": roomURL(view.Room.RoomCode)})
}

// GetRoom handles GET /api/rooms/:code.
func (h *Handler) GetRoom(c *gin.Context) {
	userID, _ := currentUser(c)
	view, err := h.Coordinator.CurrentView(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// JoinRoom handles POST /api/rooms/:code/join.
func (h *Handler) JoinRoom(c *gin.Context) {
	userID, _ := currentUser(c)
	view, err := h.Coordinator.Rooms.Join(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type leaveRoomBody struct {
	DurationSeconds *int `json:"duration_seconds"`
}

// LeaveRoom handles POST /api/rooms/:code/leave.
func (h *Handler) LeaveRoom(c *gin.Context) {
	userID, _ := currentUser(c)
	var body leaveRoomBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.abort(c, http.StatusBadRequest, "invalid_request")
			return
		}
	}

	if err := h.Coordinator.Rooms.Leave(c.Request.Context(), c.Param("code"), userID, body.DurationSeconds); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EndRoom handles POST /api/rooms/:code/end.
func (h *Handler) EndRoom(c *gin.Context) {
	userID, _ := currentUser(c)
	if err := h.Coordinator.Rooms.End(c.Request.Context(), c.Param("code"), userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type presenceBody struct {
	Online *bool `json:"online" binding:"required"`
}

// SetPresence handles POST /api/rooms/:code/presence.
func (h *Handler) SetPresence(c *gin.Context) {
	userID, _ := currentUser(c)
	var body presenceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.abort(c, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := h.Coordinator.Rooms.SetPresence(c.Request.Context(), c.Param("code"), userID, *body.Online); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleLike handles POST /api/rooms/:code/likes/:userId.
func (h *Handler) ToggleLike(c *gin.Context) {
	userID, _ := currentUser(c)
	state, err := h.Coordinator.ToggleLike(c.Request.Context(), c.Param("code"), userID, c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetLike handles GET /api/rooms/:code/likes/:userId.
func (h *Handler) GetLike(c *gin.Context) {
	userID, _ := currentUser(c)
	state, err := h.Coordinator.LikeState(c.Request.Context(), c.Param("code"), userID, c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

type telegramBody struct {
	ChatID int64 `json:"chat_id" binding:"required"`
}

// LinkTelegram handles PUT /api/me/telegram: request notifications go to the
// given chat.
func (h *Handler) LinkTelegram(c *gin.Context) {
	userID, _ := currentUser(c)
	var body telegramBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.abort(c, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := h.Storage.SetTelegramChatID(c.Request.Context(), userID, body.ChatID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
