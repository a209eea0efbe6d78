package models

import "time"

// ParticipantView is an active participant as shown to a room member.
type ParticipantView struct {
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Role        ParticipantRole `json:"role"`
	JoinedAt    time.Time       `json:"joined_at"`
	IsOnline    bool            `json:"is_online"`
}

// RoomView is the room state derived for one viewer.
type RoomView struct {
	Room         Room              `json:"room"`
	Creator      UserInfo          `json:"creator"`
	Participants []ParticipantView `json:"participants"`
	// OtherUser is the first active participant who is not the viewer,
	// used by two-party screens.
	OtherUser *ParticipantView `json:"other_user,omitempty"`
	ViewerID  string           `json:"viewer_id"`
}
