package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoomStatus is the lifecycle state of a Room. Ended is terminal.
type RoomStatus string

const (
	RoomActive RoomStatus = "active"
	RoomEnded  RoomStatus = "ended"
)

// Room is a peer-to-peer speaking practice session identified by a short code.
// RoomCode is unique among active rooms only; ended rooms may share codes.
type Room struct {
	ID              string     `gorm:"primaryKey;type:uuid" json:"id"`
	RoomCode        string     `gorm:"type:varchar(8);not null;index:idx_active_room_code,unique,where:status = 'active'" json:"room_code"`
	CreatorID       string     `gorm:"type:text;not null;index" json:"creator_id"`
	Status          RoomStatus `gorm:"type:text;not null;default:'active';index" json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	EndedBy         string     `gorm:"type:text" json:"ended_by,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
}

// BeforeCreate generates a UUID for the room if none is set.
func (r *Room) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// IsActive reports whether the room has not been ended.
func (r *Room) IsActive() bool {
	return r.Status == RoomActive
}

// ParticipantRole distinguishes the room creator from invited users.
type ParticipantRole string

const (
	RoleCreator     ParticipantRole = "creator"
	RoleParticipant ParticipantRole = "participant"
)

// Participant is one membership row of a user in a room. A row with a nil
// LeftAt is active; leaving stamps LeftAt and rejoining inserts a new row.
type Participant struct {
	ID       string          `gorm:"primaryKey;type:uuid" json:"id"`
	RoomID   string          `gorm:"type:uuid;not null;index:idx_room_user" json:"room_id"`
	UserID   string          `gorm:"type:text;not null;index:idx_room_user" json:"user_id"`
	Role     ParticipantRole `gorm:"type:text;not null;default:'participant'" json:"role"`
	JoinedAt time.Time       `gorm:"not null" json:"joined_at"`
	LeftAt   *time.Time      `gorm:"index" json:"left_at,omitempty"`
	IsOnline bool            `gorm:"not null;default:false" json:"is_online"`
}

// BeforeCreate generates a UUID for the participant row if none is set.
func (p *Participant) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

// IsActive reports whether the participant has not left.
func (p *Participant) IsActive() bool {
	return p.LeftAt == nil
}

// SessionLog records how long a user stayed in a room.
type SessionLog struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	RoomID          string    `gorm:"type:uuid;not null;index" json:"room_id"`
	UserID          string    `gorm:"type:text;not null;index" json:"user_id"`
	DurationSeconds int       `gorm:"not null" json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}
