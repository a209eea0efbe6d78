package handler

import (
	"net/http"

	"speakroom/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route. devTokens enables POST /api/token.
func NewRouter(h *Handler, devTokens bool) *gin.Engine {
	r := gin.New()
	r.Use(Metrics())
	r.Use(RequestLogger(h.Logger))
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if devTokens {
		api.POST("/token", h.IssueToken)
	}

	authed := api.Group("", h.RequireAuth())
	{
		authed.PUT("/me/telegram", h.LinkTelegram)

		authed.POST("/requests", h.SendRequest)
		authed.GET("/requests", h.ListRequests)
		authed.GET("/requests/:id", h.GetRequest)
		authed.POST("/requests/:id/accept", h.ResolveRequest(models.RequestAccepted))
		authed.POST("/requests/:id/reject", h.ResolveRequest(models.RequestRejected))
		authed.POST("/requests/:id/cancel", h.ResolveRequest(models.RequestCancelled))

		authed.POST("/rooms", h.CreateRoom)
		authed.GET("/rooms/:code", h.GetRoom)
		authed.POST("/rooms/:code/join", h.JoinRoom)
		authed.POST("/rooms/:code/leave", h.LeaveRoom)
		authed.POST("/rooms/:code/end", h.EndRoom)
		authed.POST("/rooms/:code/presence", h.SetPresence)
		authed.GET("/rooms/:code/likes/:userId", h.GetLike)
		authed.POST("/rooms/:code/likes/:userId", h.ToggleLike)
		authed.GET("/rooms/:code/messages", h.ListMessages)
		authed.POST("/rooms/:code/messages", h.PostMessage)
		authed.POST("/rooms/:code/read", h.MarkRead)
		authed.GET("/rooms/:code/unread", h.UnreadCounts)

		authed.GET("/ws/rooms/:code", h.ServeRoomSocket)
	}
	return r
}
