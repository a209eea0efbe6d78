package realtime

import (
	"context"

	"speakroom/backend/internal/models"
)

// Bus is the publish/subscribe transport. Delivery is at-least-once and
// ordered per channel; consumers must tolerate duplicates.
type Bus interface {
	// Publish broadcasts ev to every subscriber of channel.
	Publish(ctx context.Context, channel string, ev models.Event) error
	// Subscribe opens a subscription. The caller owns it and must Close it.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// TrackPresence adds key to the channel's presence set and returns the set.
	TrackPresence(ctx context.Context, channel, key string) ([]string, error)
	// UntrackPresence removes key and returns the remaining set.
	UntrackPresence(ctx context.Context, channel, key string) ([]string, error)
	// Presence returns the current presence set.
	Presence(ctx context.Context, channel string) ([]string, error)
}

// Subscription is a live feed of typed events. Events is closed after Close.
type Subscription interface {
	Events() <-chan models.Event
	Close() error
}

// RoomChannel names the channel of a room.
func RoomChannel(roomCode string) string {
	return "room:" + roomCode
}

// UserChannel names the per-user channel used for request notifications.
func UserChannel(userID string) string {
	return "user:" + userID
}

func presenceKey(channel string) string {
	return "presence:" + channel
}
