package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestStatus is the lifecycle state of a SpeakingRequest.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible from s.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestAccepted || s == RequestRejected || s == RequestCancelled
}

// SpeakingRequest is a pairwise invitation to start a practice room.
// At most one pending row may exist per unordered pair; PairKey plus the
// partial unique index enforces that in the database.
type SpeakingRequest struct {
	ID         string        `gorm:"primaryKey;type:uuid" json:"id"`
	SenderID   string        `gorm:"type:text;not null;index" json:"sender_id"`
	ReceiverID string        `gorm:"type:text;not null;index" json:"receiver_id"`
	PairKey    string        `gorm:"type:text;not null;index:idx_pending_pair,unique,where:status = 'pending'" json:"-"`
	Status     RequestStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	// RoomCode is set once an accepted request has produced a room.
	RoomCode   string     `gorm:"type:varchar(8)" json:"room_code,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// PairKey returns an order-independent key for two user IDs.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// BeforeCreate fills the ID and pair key if they are not set yet.
func (r *SpeakingRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.PairKey == "" {
		r.PairKey = PairKey(r.SenderID, r.ReceiverID)
	}
	return
}

// IsExpired reports whether a pending request has passed its expiry.
func (r *SpeakingRequest) IsExpired(now time.Time) bool {
	return r.Status == RequestPending && !now.Before(r.ExpiresAt)
}

// EffectiveStatus is the status readers should observe: an expired pending
// request reads as cancelled even before any row update.
func (r *SpeakingRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.IsExpired(now) {
		return RequestCancelled
	}
	return r.Status
}

// Involves reports whether userID is the sender or the receiver.
func (r *SpeakingRequest) Involves(userID string) bool {
	return r.SenderID == userID || r.ReceiverID == userID
}
