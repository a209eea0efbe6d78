package telegram

import (
	"context"
	"errors"
	"fmt"

	"speakroom/backend/internal/localization"
	"speakroom/backend/internal/models"
	"speakroom/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of *tgbotapi.BotAPI used for outgoing messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UserLookup resolves the receiver's linked Telegram chat.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// Notifier tells users about incoming speaking requests in Telegram. Users
// without a linked chat are skipped.
type Notifier struct {
	Sender    Sender
	Users     UserLookup
	Localizer *localization.Localizer
	Language  string
	Logger    zerolog.Logger
}

func NewNotifier(sender Sender, users UserLookup, localizer *localization.Localizer, logger zerolog.Logger) *Notifier {
	return &Notifier{
		Sender:    sender,
		Users:     users,
		Localizer: localizer,
		Language:  localization.DefaultLanguage,
		Logger:    logger,
	}
}

func (n *Notifier) NotifyRequest(ctx context.Context, req models.SpeakingRequest, senderName string) error {
	user, err := n.Users.GetUserByID(ctx, req.ReceiverID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load receiver: %w", err)
	}
	if user.TelegramChatID == 0 {
		return nil
	}

	text := fmt.Sprintf(n.Localizer.GetString(n.Language, "telegram.new_request"), senderName)
	if _, err := n.Sender.Send(tgbotapi.NewMessage(user.TelegramChatID, text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	n.Logger.Debug().Str("request_id", req.ID).Int64("chat_id", user.TelegramChatID).Msg("request notification sent")
	return nil
}
