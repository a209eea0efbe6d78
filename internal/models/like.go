package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Like is one user's like of another user, recorded in the room where it
// happened. Unique per (LikerID, LikedUserID).
type Like struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	RoomID      string    `gorm:"type:uuid;not null;index" json:"room_id"`
	LikerID     string    `gorm:"type:text;not null;uniqueIndex:idx_liker_liked" json:"liker_id"`
	LikedUserID string    `gorm:"type:text;not null;uniqueIndex:idx_liker_liked;index" json:"liked_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (l *Like) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return
}

// LikeState is what a viewer sees for a target: whether they liked it and
// the total number of likes it has.
type LikeState struct {
	HasLiked   bool `json:"has_liked"`
	LikesCount int  `json:"likes_count"`
}
