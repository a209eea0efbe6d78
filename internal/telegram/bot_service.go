// Package telegram handles the integration with the Telegram Bot API: users
// link their chat through the bot and receive request notifications there.
package telegram

import (
	"context"
	"strings"

	"speakroom/backend/internal/localization"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// ChatLinker stores the chat a user's notifications go to.
type ChatLinker interface {
	SetTelegramChatID(ctx context.Context, userID string, chatID int64) error
}

// TokenParser returns the user id carried by an app token.
type TokenParser func(token string) (string, error)

// BotService receives Telegram updates and handles the bot commands.
type BotService struct {
	BotAPI    *tgbotapi.BotAPI
	Sender    Sender
	Linker    ChatLinker
	Tokens    TokenParser
	Localizer *localization.Localizer
	Logger    zerolog.Logger
}

// NewBotService authorizes the bot with token.
func NewBotService(token string, linker ChatLinker, tokens TokenParser, localizer *localization.Localizer, logger zerolog.Logger) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram bot authorized")

	return &BotService{
		BotAPI:    bot,
		Sender:    bot,
		Linker:    linker,
		Tokens:    tokens,
		Localizer: localizer,
		Logger:    logger,
	}, nil
}

// Run consumes updates until ctx is done.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate answers /start and /link; everything else is ignored.
func (s *BotService) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}

	lang := localization.DefaultLanguage
	if msg.From != nil {
		lang = s.Localizer.Match(msg.From.LanguageCode)
	}

	switch msg.Command() {
	case "start":
		s.reply(msg.Chat.ID, s.Localizer.GetString(lang, "telegram.start"))
	case "link":
		s.reply(msg.Chat.ID, s.Localizer.GetString(lang, s.link(ctx, msg.Chat.ID, msg.CommandArguments())))
	}
}

// link returns the localization key of the reply.
func (s *BotService) link(ctx context.Context, chatID int64, token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return "telegram.link_usage"
	}
	userID, err := s.Tokens(token)
	if err != nil {
		return "telegram.link_invalid"
	}
	if err := s.Linker.SetTelegramChatID(ctx, userID, chatID); err != nil {
		s.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to link telegram chat")
		return "telegram.link_failed"
	}
	s.Logger.Info().Str("user_id", userID).Int64("chat_id", chatID).Msg("telegram chat linked")
	return "telegram.linked"
}

func (s *BotService) reply(chatID int64, text string) {
	if _, err := s.Sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		s.Logger.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram reply failed")
	}
}
