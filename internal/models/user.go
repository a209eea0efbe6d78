package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the local record of an identity supplied by the auth provider.
type User struct {
	ID          string `gorm:"primaryKey" json:"id"`
	DisplayName string `gorm:"type:text" json:"display_name"`
	// TelegramChatID is zero when the user has not linked Telegram.
	TelegramChatID int64     `gorm:"index" json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BeforeCreate is a GORM hook that generates a UUID for users created without
// an ID from the identity provider.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// UserInfo is the public part of a user shown in room views.
type UserInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}
