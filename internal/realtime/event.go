// Package realtime carries room and user events between server instances and
// connected clients. Payloads are decoded into typed events at the
// subscription boundary so consumers never handle raw JSON.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"speakroom/backend/internal/models"
)

var (
	ErrUnknownEvent = errors.New("realtime: unknown event kind")
	ErrInvalidEvent = errors.New("realtime: invalid event payload")
)

// Envelope is the wire shape of every realtime payload.
type Envelope struct {
	Kind    models.EventKind `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
}

// Encode wraps ev in an Envelope and marshals it.
func Encode(ev models.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: ev.Kind(), Payload: payload})
}

// Decode parses and validates an encoded envelope.
func Decode(data []byte) (models.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope turns an already-split envelope into its typed event.
func DecodeEnvelope(env Envelope) (models.Event, error) {
	var (
		ev  models.Event
		err error
	)
	switch env.Kind {
	case models.EventRoomEnded:
		ev, err = decodeAs[models.RoomEndedEvent](env.Payload)
	case models.EventParticipantJoined:
		ev, err = decodeAs[models.ParticipantJoinedEvent](env.Payload)
	case models.EventParticipantLeft:
		ev, err = decodeAs[models.ParticipantLeftEvent](env.Payload)
	case models.EventPresenceUpdate:
		ev, err = decodeAs[models.PresenceUpdateEvent](env.Payload)
	case models.EventLikeAdded:
		ev, err = decodeAs[models.LikeAddedEvent](env.Payload)
	case models.EventLikeRemoved:
		ev, err = decodeAs[models.LikeRemovedEvent](env.Payload)
	case models.EventNewMessage:
		ev, err = decodeAs[models.NewMessageEvent](env.Payload)
	case models.EventTyping:
		ev, err = decodeAs[models.TypingIndicator](env.Payload)
	case models.EventRequestUpdated:
		ev, err = decodeAs[models.RequestUpdatedEvent](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, env.Kind, err)
	}
	if err := validate(ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, env.Kind, err)
	}
	return ev, nil
}

func decodeAs[T models.Event](payload json.RawMessage) (models.Event, error) {
	var v T
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func validate(ev models.Event) error {
	switch e := ev.(type) {
	case models.RoomEndedEvent:
		if e.RoomCode == "" {
			return errors.New("missing room_code")
		}
	case models.ParticipantJoinedEvent:
		if e.RoomCode == "" || e.UserID == "" {
			return errors.New("missing room_code or user_id")
		}
	case models.ParticipantLeftEvent:
		if e.RoomCode == "" || e.UserID == "" {
			return errors.New("missing room_code or user_id")
		}
	case models.PresenceUpdateEvent:
		if e.RoomCode == "" {
			return errors.New("missing room_code")
		}
	case models.LikeAddedEvent:
		if e.LikerID == "" || e.LikedUserID == "" {
			return errors.New("missing liker_id or liked_user_id")
		}
	case models.LikeRemovedEvent:
		if e.LikerID == "" || e.LikedUserID == "" {
			return errors.New("missing liker_id or liked_user_id")
		}
	case models.NewMessageEvent:
		if e.Message.ID == "" || e.Message.RoomCode == "" || e.Message.SenderID == "" {
			return errors.New("incomplete message")
		}
		if e.Message.IsPrivate != (e.Message.ReceiverID != "") {
			return models.ErrPrivateRecipient
		}
	case models.TypingIndicator:
		if e.UserID == "" || e.Timestamp.IsZero() {
			return errors.New("missing user_id or timestamp")
		}
	case models.RequestUpdatedEvent:
		if e.Request.ID == "" {
			return errors.New("missing request id")
		}
	}
	return nil
}
