package models

import (
	"errors"
	"strings"
	"time"
)

// MessageKind indicates the kind of chat message.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageEmoji  MessageKind = "emoji"
	MessageSystem MessageKind = "system"
)

var (
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrMessageTooLong   = errors.New("message text is too long")
	ErrInvalidKind      = errors.New("invalid message kind")
	ErrPrivateRecipient = errors.New("private messages need a receiver and group messages must not have one")
)

// ChatMessage is a persisted room chat message. Only IsRead changes after
// creation.
type ChatMessage struct {
	// ID is a ULID so that lexical order follows creation order.
	ID         string      `gorm:"primaryKey;type:varchar(26)" json:"id"`
	// RoomID scopes history to one room; codes are reused once rooms end.
	RoomID     string      `gorm:"type:uuid;not null;index:idx_room_created" json:"room_id"`
	RoomCode   string      `gorm:"type:varchar(8);not null" json:"room_code"`
	SenderID   string      `gorm:"type:text;not null;index" json:"sender_id"`
	SenderName string      `gorm:"type:text" json:"sender_name,omitempty"`
	ReceiverID string      `gorm:"type:text;index" json:"receiver_id,omitempty"`
	Text       string      `gorm:"type:text;not null" json:"text"`
	Kind       MessageKind `gorm:"type:text;not null;default:'text'" json:"kind"`
	IsPrivate  bool        `gorm:"not null;default:false" json:"is_private"`
	IsRead     bool        `gorm:"not null;default:false" json:"is_read"`
	CreatedAt  time.Time   `gorm:"index:idx_room_created" json:"created_at"`
}

// Validate checks the message shape before it is persisted.
func (m *ChatMessage) Validate(maxLength int) error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyMessage
	}
	if maxLength > 0 && len([]rune(m.Text)) > maxLength {
		return ErrMessageTooLong
	}
	switch m.Kind {
	case MessageText, MessageEmoji, MessageSystem:
	default:
		return ErrInvalidKind
	}
	if m.IsPrivate != (m.ReceiverID != "") {
		return ErrPrivateRecipient
	}
	return nil
}

// VisibleTo reports whether userID may see the message.
func (m *ChatMessage) VisibleTo(userID string) bool {
	if !m.IsPrivate {
		return true
	}
	return m.SenderID == userID || m.ReceiverID == userID
}

// UnreadCounts holds unread group messages plus unread private messages
// keyed by sender.
type UnreadCounts struct {
	Group   int            `json:"group"`
	Private map[string]int `json:"private"`
}
