package speaking_test

import (
	"context"
	"testing"
	"time"

	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/speaking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreate_AllocationExhaustedCreatesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	checker := new(MockCodeChecker)
	checker.On("IsRoomCodeActive", mock.AnythingOfType("string")).Return(true, nil)
	h.coord.Rooms.Codes.Checker = checker

	_, err := h.coord.Rooms.Create(ctx, "alice", "bob")
	assert.ErrorIs(t, err, speaking.ErrAllocationExhausted)

	codes, err := h.store.ListActiveRoomCodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestCreate_SelfInviteIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	room, err := h.coord.Rooms.Create(ctx, "alice", "alice")
	require.NoError(t, err)

	parts, err := h.store.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, models.RoleCreator, parts[0].Role)
	assert.True(t, parts[0].IsOnline)
}

func TestJoin_Authorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t)

	view, err := h.coord.Rooms.Join(ctx, room.RoomCode, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", view.ViewerID)

	view, err = h.coord.Rooms.Join(ctx, room.RoomCode, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, activeUserIDs(view))
	for _, p := range view.Participants {
		assert.True(t, p.IsOnline, "%s should be online", p.UserID)
	}

	_, err = h.coord.Rooms.Join(ctx, room.RoomCode, "carol")
	assert.ErrorIs(t, err, speaking.ErrNotAuthorized)
}

func TestJoin_UnknownAndMalformedCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Rooms.Join(ctx, "ZZZZZZZZ", "alice")
	assert.ErrorIs(t, err, speaking.ErrRoomNotFound)

	_, err = h.coord.Rooms.Join(ctx, "../etc", "alice")
	assert.ErrorIs(t, err, speaking.ErrRoomNotFound)
}

func TestEnd_StrangerCannotEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t)

	err := h.coord.Rooms.End(ctx, room.RoomCode, "carol")
	assert.ErrorIs(t, err, speaking.ErrNotAuthorized)

	stored, err := h.store.GetRoomByCode(ctx, room.RoomCode)
	require.NoError(t, err)
	assert.Equal(t, models.RoomActive, stored.Status)
}

func TestEnd_IsIdempotentAndClosesRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t)

	h.clock.Advance(90 * time.Second)
	require.NoError(t, h.coord.Rooms.End(ctx, room.RoomCode, "bob"))
	require.NoError(t, h.coord.Rooms.End(ctx, room.RoomCode, "bob"))
	require.NoError(t, h.coord.Rooms.End(ctx, room.RoomCode, "carol"))

	stored, err := h.store.GetRoomByCode(ctx, room.RoomCode)
	require.NoError(t, err)
	assert.Equal(t, models.RoomEnded, stored.Status)
	assert.Equal(t, "bob", stored.EndedBy)
	require.NotNil(t, stored.DurationSeconds)
	assert.Equal(t, 90, *stored.DurationSeconds)

	parts, err := h.store.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	for _, p := range parts {
		assert.False(t, p.IsActive(), "%s still active", p.UserID)
		assert.False(t, p.IsOnline)
	}

	_, err = h.coord.Rooms.Join(ctx, room.RoomCode, "alice")
	assert.ErrorIs(t, err, speaking.ErrRoomEnded)
	assert.ErrorIs(t, err, speaking.ErrRoomNotFound)

	_, err = h.coord.Rooms.GetView(ctx, room.RoomCode, "alice")
	assert.ErrorIs(t, err, speaking.ErrRoomEnded)
}

func TestEnd_BroadcastsRoomEnded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t)

	sub, err := h.bus.Subscribe(ctx, realtime.RoomChannel(room.RoomCode))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, h.coord.Rooms.End(ctx, room.RoomCode, "alice"))

	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ended, ok := ev.(models.RoomEndedEvent); ok {
				assert.Equal(t, room.RoomCode, ended.RoomCode)
				assert.Equal(t, "alice", ended.EndedBy)
				return
			}
		case <-timeout:
			t.Fatal("room ended event not delivered")
		}
	}
}

func TestLeave_RecordsSessionAndAllowsRejoin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t)

	_, err := h.coord.Rooms.Join(ctx, room.RoomCode, "bob")
	require.NoError(t, err)

	duration := 300
	require.NoError(t, h.coord.Rooms.Leave(ctx, room.RoomCode, "bob", &duration))
	require.NoError(t, h.coord.Rooms.Leave(ctx, room.RoomCode, "bob", nil))

	logs := h.store.SessionLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "bob", logs[0].UserID)
	assert.Equal(t, 300, logs[0].DurationSeconds)

	view, err := h.coord.Rooms.GetView(ctx, room.RoomCode, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, activeUserIDs(view))
	assert.Nil(t, view.OtherUser)

	// A participant who left may come back while the room is active.
	view, err = h.coord.Rooms.Join(ctx, room.RoomCode, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, activeUserIDs(view))

	parts, err := h.store.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, parts, 3)
}

func TestLeave_EndedRoomIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t)

	require.NoError(t, h.coord.Rooms.End(ctx, room.RoomCode, "alice"))
	assert.NoError(t, h.coord.Rooms.Leave(ctx, room.RoomCode, "bob", nil))
}

func TestSetPresence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t)

	require.NoError(t, h.coord.Rooms.SetPresence(ctx, room.RoomCode, "bob", true))

	online, err := h.bus.Presence(ctx, realtime.RoomChannel(room.RoomCode))
	require.NoError(t, err)
	assert.Contains(t, online, "bob")

	require.NoError(t, h.coord.Rooms.SetPresence(ctx, room.RoomCode, "bob", false))

	view, err := h.coord.Rooms.GetView(ctx, room.RoomCode, "alice")
	require.NoError(t, err)
	for _, p := range view.Participants {
		if p.UserID == "bob" {
			assert.False(t, p.IsOnline)
		}
	}

	err = h.coord.Rooms.SetPresence(ctx, room.RoomCode, "carol", true)
	assert.ErrorIs(t, err, speaking.ErrNotAuthorized)
}

func TestGetView_NamesOtherUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.createRoom(t)

	view, err := h.coord.Rooms.GetView(ctx, room.RoomCode, "alice")
	require.NoError(t, err)

	require.NotNil(t, view.OtherUser)
	assert.Equal(t, "bob", view.OtherUser.UserID)
	assert.Equal(t, "Bob", view.OtherUser.DisplayName)
	assert.Equal(t, models.RoleParticipant, view.OtherUser.Role)
	assert.False(t, view.OtherUser.IsOnline)
}
