package models

import "time"

// EventKind tags realtime payloads.
type EventKind string

const (
	EventRoomEnded         EventKind = "room_ended"
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	EventPresenceUpdate    EventKind = "presence_update"
	EventLikeAdded         EventKind = "like_added"
	EventLikeRemoved       EventKind = "like_removed"
	EventNewMessage        EventKind = "new_message"
	EventTyping            EventKind = "typing"
	EventRequestUpdated    EventKind = "request_updated"
)

// Event is implemented by every realtime payload type.
type Event interface {
	Kind() EventKind
}

type RoomEndedEvent struct {
	RoomCode        string    `json:"room_code"`
	EndedBy         string    `json:"ended_by"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

type ParticipantJoinedEvent struct {
	RoomCode string          `json:"room_code"`
	UserID   string          `json:"user_id"`
	Role     ParticipantRole `json:"role"`
	JoinedAt time.Time       `json:"joined_at"`
}

type ParticipantLeftEvent struct {
	RoomCode string    `json:"room_code"`
	UserID   string    `json:"user_id"`
	LeftAt   time.Time `json:"left_at"`
}

// PresenceUpdateEvent carries the full online set after a change.
type PresenceUpdateEvent struct {
	RoomCode string   `json:"room_code"`
	Online   []string `json:"online"`
}

type LikeAddedEvent struct {
	RoomID      string `json:"room_id"`
	LikerID     string `json:"liker_id"`
	LikedUserID string `json:"liked_user_id"`
}

type LikeRemovedEvent struct {
	RoomID      string `json:"room_id"`
	LikerID     string `json:"liker_id"`
	LikedUserID string `json:"liked_user_id"`
}

type NewMessageEvent struct {
	Message ChatMessage `json:"message"`
}

// TypingIndicator is ephemeral and never persisted. Receivers drop it once
// it is older than the typing TTL.
type TypingIndicator struct {
	RoomCode   string    `json:"room_code"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	IsTyping   bool      `json:"is_typing"`
	IsPrivate  bool      `json:"is_private"`
	ReceiverID string    `json:"receiver_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Expired reports whether the indicator is older than ttl at now.
func (t TypingIndicator) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.Timestamp) > ttl
}

type RequestUpdatedEvent struct {
	Request SpeakingRequest `json:"request"`
}

func (RoomEndedEvent) Kind() EventKind         { return EventRoomEnded }
func (ParticipantJoinedEvent) Kind() EventKind { return EventParticipantJoined }
func (ParticipantLeftEvent) Kind() EventKind   { return EventParticipantLeft }
func (PresenceUpdateEvent) Kind() EventKind    { return EventPresenceUpdate }
func (LikeAddedEvent) Kind() EventKind         { return EventLikeAdded }
func (LikeRemovedEvent) Kind() EventKind       { return EventLikeRemoved }
func (NewMessageEvent) Kind() EventKind        { return EventNewMessage }
func (TypingIndicator) Kind() EventKind        { return EventTyping }
func (RequestUpdatedEvent) Kind() EventKind    { return EventRequestUpdated }
