package handler

import (
	"net/http"

	"speakroom/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type sendRequestBody struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
}

// SendRequest handles POST /api/requests.
func (h *Handler) SendRequest(c *gin.Context) {
	userID, _ := currentUser(c)
	var body sendRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.abort(c, http.StatusBadRequest, "invalid_request")
		return
	}

	req, err := h.Coordinator.Requests.Send(c.Request.Context(), userID, body.ReceiverID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// ListRequests handles GET /api/requests.
func (h *Handler) ListRequests(c *gin.Context) {
	userID, _ := currentUser(c)
	pending, err := h.Coordinator.Requests.ListPending(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

// GetRequest handles GET /api/requests/:id.
func (h *Handler) GetRequest(c *gin.Context) {
	userID, _ := currentUser(c)
	req, err := h.Coordinator.Requests.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ResolveRequest returns the handler for accept, reject or cancel.
func (h *Handler) ResolveRequest(outcome models.RequestStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := currentUser(c)
		req, view, err := h.Coordinator.RespondToRequest(c.Request.Context(), c.Param("id"), userID, outcome)
		if err != nil {
			h.respondError(c, err)
			return
		}
		resp := gin.H{"request": req}
		if view != nil {
			resp["room"] = view
			resp["room_url"] = roomURL(view.Room.RoomCode)
		}
		c.JSON(http.StatusOK, resp)
	}
}
