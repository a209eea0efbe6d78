package handler

import (
	"net/http"

	"speakroom/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

var statusByCode = map[string]int{
	"room_ended":           http.StatusGone,
	"room_not_found":       http.StatusNotFound,
	"request_not_found":    http.StatusNotFound,
	"not_found":            http.StatusNotFound,
	"not_authorized":       http.StatusForbidden,
	"already_resolved":     http.StatusConflict,
	"duplicate_pending":    http.StatusConflict,
	"room_creation_failed": http.StatusServiceUnavailable,
	"allocation_exhausted": http.StatusServiceUnavailable,
	"self_request":         http.StatusBadRequest,
	"self_like":            http.StatusBadRequest,
	"invalid_outcome":      http.StatusBadRequest,
	"invalid_message":      http.StatusBadRequest,
	"persistence_failed":   http.StatusServiceUnavailable,
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// respondError maps err to a status code and a localized message.
func (h *Handler) respondError(c *gin.Context, err error) {
	code := chathub.ChatErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	h.abort(c, status, code)
}

func (h *Handler) abort(c *gin.Context, status int, code string) {
	lang := h.Localizer.Match(c.GetHeader("Accept-Language"))
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    code,
		Message: h.Localizer.GetString(lang, "error."+code),
	})
}
