package handler

import (
	"net/http"

	"speakroom/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients are served from other origins; auth is the bearer token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeRoomSocket handles GET /api/ws/rooms/:code. The socket carries chat
// events, typing indicators and room state; the room ended event is its last
// frame.
func (h *Handler) ServeRoomSocket(c *gin.Context) {
	userID, userName := currentUser(c)
	code := c.Param("code")
	ctx := h.BaseContext

	// Everything that can be refused is checked before the upgrade so the
	// client gets a normal HTTP error.
	watch, err := h.Coordinator.Watch(ctx, code, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	feed, err := h.Chat.Connect(ctx, code, userID)
	if err != nil {
		watch.Close()
		h.respondError(c, err)
		return
	}
	if _, err := h.Coordinator.Rooms.Join(ctx, code, userID); err != nil {
		feed.Disconnect()
		watch.Close()
		h.respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		feed.Disconnect()
		watch.Close()
		h.markOffline(code, userID)
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Chat, feed, watch, userName, h.Logger)
	client.OnClose = func() { h.markOffline(code, userID) }
	h.Hub.Register(ctx, client)
	client.Run()
}

func (h *Handler) markOffline(code, userID string) {
	if err := h.Coordinator.Rooms.SetPresence(h.BaseContext, code, userID, false); err != nil {
		h.Logger.Debug().Err(err).Str("room_code", code).Str("user_id", userID).Msg("presence not cleared")
	}
}
