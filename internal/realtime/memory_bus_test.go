package realtime_test

import (
	"context"
	"testing"
	"time"

	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_FanOutPerChannel(t *testing.T) {
	ctx := context.Background()
	bus := realtime.NewMemoryBus(zerolog.Nop())

	subA, err := bus.Subscribe(ctx, realtime.RoomChannel("AAAA1111"))
	require.NoError(t, err)
	defer subA.Close()
	subB, err := bus.Subscribe(ctx, realtime.RoomChannel("BBBB2222"))
	require.NoError(t, err)
	defer subB.Close()

	ev := models.ParticipantLeftEvent{RoomCode: "AAAA1111", UserID: "u1", LeftAt: time.Now().UTC()}
	require.NoError(t, bus.Publish(ctx, realtime.RoomChannel("AAAA1111"), ev))

	select {
	case got := <-subA.Events():
		assert.Equal(t, models.EventParticipantLeft, got.Kind())
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case got := <-subB.Events():
		t.Fatalf("unexpected event on other channel: %v", got)
	default:
	}
}

func TestMemoryBus_CloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	bus := realtime.NewMemoryBus(zerolog.Nop())
	channel := realtime.UserChannel("u1")

	sub, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, bus.Publish(ctx, channel, models.PresenceUpdateEvent{RoomCode: "R"}))
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestMemoryBus_Presence(t *testing.T) {
	ctx := context.Background()
	bus := realtime.NewMemoryBus(zerolog.Nop())
	channel := realtime.RoomChannel("ABCD1234")

	set, _ := bus.TrackPresence(ctx, channel, "u2")
	assert.Equal(t, []string{"u2"}, set)
	set, _ = bus.TrackPresence(ctx, channel, "u1")
	assert.Equal(t, []string{"u1", "u2"}, set)
	set, _ = bus.UntrackPresence(ctx, channel, "u2")
	assert.Equal(t, []string{"u1"}, set)

	set, _ = bus.Presence(ctx, channel)
	assert.Equal(t, []string{"u1"}, set)
}
