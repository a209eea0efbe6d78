// Package handler exposes the speaking coordinator and room chat over HTTP
// and websockets.
package handler

import (
	"context"

	"speakroom/backend/internal/chathub"
	"speakroom/backend/internal/localization"
	"speakroom/backend/internal/speaking"
	"speakroom/backend/internal/storage"

	"github.com/rs/zerolog"
)

// Handler holds the services the HTTP layer calls into.
type Handler struct {
	Coordinator *speaking.Coordinator
	Chat        *chathub.Channel
	Hub         *chathub.Hub
	Storage     storage.Storage
	Auth        *Authenticator
	Localizer   *localization.Localizer
	Logger      zerolog.Logger

	// BaseContext outlives single requests; websocket sessions run on it.
	BaseContext context.Context
}

func NewHandler(coord *speaking.Coordinator, chat *chathub.Channel, hub *chathub.Hub, s storage.Storage, auth *Authenticator, logger zerolog.Logger) *Handler {
	return &Handler{
		Coordinator: coord,
		Chat:        chat,
		Hub:         hub,
		Storage:     s,
		Auth:        auth,
		Localizer:   localization.Default(),
		Logger:      logger,
		BaseContext: context.Background(),
	}
}
