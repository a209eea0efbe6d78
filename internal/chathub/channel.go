package chathub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"speakroom/backend/internal/config"
	"speakroom/backend/internal/metrics"
	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/speaking"
	"speakroom/backend/internal/storage"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// RoomAccess decides whether a user may use a room's chat.
type RoomAccess interface {
	CanAccess(ctx context.Context, code, userID string) (*models.Room, error)
}

// Channel is the chat of a room: durable history plus live delivery over the
// realtime bus. A message is stored before it is broadcast, so the broadcast
// only ever announces committed state.
type Channel struct {
	Storage   storage.Storage
	Bus       realtime.Bus
	Access    RoomAccess
	Now       func() time.Time
	TypingTTL time.Duration
	Logger    zerolog.Logger
}

func NewChannel(s storage.Storage, bus realtime.Bus, access RoomAccess, logger zerolog.Logger) *Channel {
	return &Channel{
		Storage:   s,
		Bus:       bus,
		Access:    access,
		Now:       time.Now,
		TypingTTL: config.TypingIndicatorTTL,
		Logger:    logger,
	}
}

// Connect opens a live chat feed of the room for userID. The caller owns the
// Connection and must Disconnect it.
func (c *Channel) Connect(ctx context.Context, code, userID string) (*Connection, error) {
	if _, err := c.Access.CanAccess(ctx, code, userID); err != nil {
		return nil, err
	}
	conn := newConnection(c, code, userID)
	if err := conn.subscribe(ctx); err != nil {
		return nil, err
	}
	metrics.ChatConnections.Inc()
	c.Logger.Debug().Str("room_code", code).Str("user_id", userID).Msg("chat connected")
	return conn, nil
}

// Send stores msg and then broadcasts it. The returned message carries the
// assigned id and timestamp. If storing fails nothing is broadcast and the
// error wraps speaking.ErrPersistenceFailed.
func (c *Channel) Send(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error) {
	room, err := c.Access.CanAccess(ctx, msg.RoomCode, msg.SenderID)
	if err != nil {
		return nil, err
	}
	if msg.Kind == "" {
		msg.Kind = models.MessageText
	}
	if msg.ReceiverID != "" {
		if msg.ReceiverID == msg.SenderID {
			return nil, models.ErrPrivateRecipient
		}
		if _, err := c.Access.CanAccess(ctx, msg.RoomCode, msg.ReceiverID); err != nil {
			return nil, err
		}
	}
	if err := msg.Validate(config.MaxMessageLength); err != nil {
		return nil, err
	}

	now := c.Now()
	msg.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	msg.RoomID = room.ID
	msg.CreatedAt = now
	msg.IsRead = false

	if err := c.Storage.SaveMessage(ctx, &msg); err != nil {
		c.Logger.Error().Err(err).Str("room_code", msg.RoomCode).Str("sender_id", msg.SenderID).Msg("failed to store chat message")
		return nil, fmt.Errorf("%w: save message: %w", speaking.ErrPersistenceFailed, err)
	}

	visibility := "group"
	if msg.IsPrivate {
		visibility = "private"
	}
	metrics.MessagesSent.WithLabelValues(visibility).Inc()

	if err := c.Bus.Publish(ctx, realtime.RoomChannel(msg.RoomCode), models.NewMessageEvent{Message: msg}); err != nil {
		// Stored already; receivers pick it up on their next resync.
		c.Logger.Warn().Err(err).Str("message_id", msg.ID).Msg("chat publish failed")
	}
	return &msg, nil
}

// SendTyping broadcasts an ephemeral typing indicator. Nothing is stored.
func (c *Channel) SendTyping(ctx context.Context, code, userID, userName string, isTyping bool, receiverID string) error {
	if _, err := c.Access.CanAccess(ctx, code, userID); err != nil {
		return err
	}
	ev := models.TypingIndicator{
		RoomCode:   code,
		UserID:     userID,
		UserName:   userName,
		IsTyping:   isTyping,
		IsPrivate:  receiverID != "",
		ReceiverID: receiverID,
		Timestamp:  c.Now(),
	}
	return c.Bus.Publish(ctx, realtime.RoomChannel(code), ev)
}

// History returns a page of the messages userID can see, oldest first.
// A non-positive limit means the default page size.
func (c *Channel) History(ctx context.Context, code, userID string, limit, offset int) ([]models.ChatMessage, error) {
	room, err := c.Access.CanAccess(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	msgs, err := c.Storage.GetMessages(ctx, room.ID, userID, pageSize(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %w", speaking.ErrPersistenceFailed, err)
	}
	return msgs, nil
}

// Recent returns the newest limit messages userID can see, oldest first.
func (c *Channel) Recent(ctx context.Context, code, userID string, limit int) ([]models.ChatMessage, error) {
	room, err := c.Access.CanAccess(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := c.Storage.GetLatestMessages(ctx, room.ID, userID, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: load recent history: %w", speaking.ErrPersistenceFailed, err)
	}
	return msgs, nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return config.DefaultHistorySize
	}
	if limit > config.MaxHistorySize {
		return config.MaxHistorySize
	}
	return limit
}

// MarkRead marks messages read for userID. With fromSenderID only private
// messages from that sender are marked; otherwise all group messages not
// written by userID.
func (c *Channel) MarkRead(ctx context.Context, code, userID, fromSenderID string) (int64, error) {
	room, err := c.Access.CanAccess(ctx, code, userID)
	if err != nil {
		return 0, err
	}
	n, err := c.Storage.MarkMessagesRead(ctx, room.ID, userID, fromSenderID)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %w", speaking.ErrPersistenceFailed, err)
	}
	return n, nil
}

func (c *Channel) UnreadCounts(ctx context.Context, code, userID string) (models.UnreadCounts, error) {
	room, err := c.Access.CanAccess(ctx, code, userID)
	if err != nil {
		return models.UnreadCounts{}, err
	}
	counts, err := c.Storage.UnreadCounts(ctx, room.ID, userID)
	if err != nil {
		return models.UnreadCounts{}, fmt.Errorf("%w: unread counts: %w", speaking.ErrPersistenceFailed, err)
	}
	return counts, nil
}

// IsValidationError reports whether err came from message validation.
func IsValidationError(err error) bool {
	return errors.Is(err, models.ErrEmptyMessage) ||
		errors.Is(err, models.ErrMessageTooLong) ||
		errors.Is(err, models.ErrInvalidKind) ||
		errors.Is(err, models.ErrPrivateRecipient)
}
