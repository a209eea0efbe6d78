package memstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"speakroom/backend/internal/models"
	"speakroom/backend/internal/storage"
	"speakroom/backend/internal/storage/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequest_RejectsLivePendingInEitherDirection(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	now := time.Now()

	first := &models.SpeakingRequest{SenderID: "a", ReceiverID: "b", Status: models.RequestPending, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, s.CreateRequest(ctx, first, now))

	reverse := &models.SpeakingRequest{SenderID: "b", ReceiverID: "a", Status: models.RequestPending, ExpiresAt: now.Add(time.Minute)}
	assert.ErrorIs(t, s.CreateRequest(ctx, reverse, now), storage.ErrDuplicate)
}

func TestCreateRequest_ReplacesExpiredPending(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	now := time.Now()

	stale := &models.SpeakingRequest{SenderID: "a", ReceiverID: "b", Status: models.RequestPending, ExpiresAt: now.Add(-time.Second)}
	require.NoError(t, s.CreateRequest(ctx, stale, now.Add(-time.Hour)))

	fresh := &models.SpeakingRequest{SenderID: "a", ReceiverID: "b", Status: models.RequestPending, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, s.CreateRequest(ctx, fresh, now))

	old, err := s.GetRequest(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, old.Status)
}

func TestTransitionRequest_ExpiredPendingDoesNotMove(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	now := time.Now()

	req := &models.SpeakingRequest{SenderID: "a", ReceiverID: "b", Status: models.RequestPending, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, s.CreateRequest(ctx, req, now))

	ok, err := s.TransitionRequest(ctx, req.ID, models.RequestPending, models.RequestAccepted, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "expired request must not be accepted")

	stored, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)

	ok, err = s.TransitionRequest(ctx, req.ID, models.RequestPending, models.RequestAccepted, now.Add(59*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEndRoom_ClearsParticipantsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	created := time.Now().Add(-90 * time.Second)

	room := &models.Room{RoomCode: "ABCD1234", CreatorID: "a", Status: models.RoomActive, CreatedAt: created}
	require.NoError(t, s.CreateRoom(ctx, room, []models.Participant{
		{UserID: "a", Role: models.RoleCreator, JoinedAt: created, IsOnline: true},
		{UserID: "b", Role: models.RoleParticipant, JoinedAt: created},
	}))

	ended, transitioned, err := s.EndRoom(ctx, room.ID, "a", created.Add(90*time.Second))
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, 90, *ended.DurationSeconds)

	parts, _ := s.ListParticipants(ctx, room.ID)
	for _, p := range parts {
		assert.False(t, p.IsActive())
		assert.False(t, p.IsOnline)
	}

	_, transitioned, err = s.EndRoom(ctx, room.ID, "b", time.Now())
	require.NoError(t, err)
	assert.False(t, transitioned)

	active, _ := s.IsRoomCodeActive(ctx, "ABCD1234")
	assert.False(t, active)
}

func TestCreateRoom_ActiveCodeCollision(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	require.NoError(t, s.CreateRoom(ctx, &models.Room{RoomCode: "SAMECODE", Status: models.RoomActive}, nil))
	err := s.CreateRoom(ctx, &models.Room{RoomCode: "SAMECODE", Status: models.RoomActive}, nil)
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestMessages_ReadStateAndUnreadCounts(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	base := time.Now()

	msgs := []models.ChatMessage{
		{ID: "01", RoomID: "R", SenderID: "a", Text: "hi all", Kind: models.MessageText, CreatedAt: base},
		{ID: "02", RoomID: "R", SenderID: "a", ReceiverID: "b", IsPrivate: true, Text: "psst", Kind: models.MessageText, CreatedAt: base.Add(time.Second)},
		{ID: "03", RoomID: "R", SenderID: "c", ReceiverID: "a", IsPrivate: true, Text: "not for b", Kind: models.MessageText, CreatedAt: base.Add(2 * time.Second)},
		{ID: "04", RoomID: "R", SenderID: "b", Text: "mine", Kind: models.MessageText, CreatedAt: base.Add(3 * time.Second)},
	}
	for i := range msgs {
		require.NoError(t, s.SaveMessage(ctx, &msgs[i]))
	}

	history, err := s.GetMessages(ctx, "R", "b", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"01", "02", "04"}, []string{history[0].ID, history[1].ID, history[2].ID})

	counts, _ := s.UnreadCounts(ctx, "R", "b")
	assert.Equal(t, 1, counts.Group)
	assert.Equal(t, map[string]int{"a": 1}, counts.Private)

	n, _ := s.MarkMessagesRead(ctx, "R", "b", "a")
	assert.EqualValues(t, 1, n)
	counts, _ = s.UnreadCounts(ctx, "R", "b")
	assert.Equal(t, 1, counts.Group)
	assert.Empty(t, counts.Private)

	n, _ = s.MarkMessagesRead(ctx, "R", "b", "")
	assert.EqualValues(t, 1, n)
	counts, _ = s.UnreadCounts(ctx, "R", "b")
	assert.Zero(t, counts.Group)
}

func TestGetLatestMessages_NewestPageOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	base := time.Now()

	for i := 0; i < 5; i++ {
		msg := models.ChatMessage{ID: fmt.Sprintf("0%d", i), RoomID: "R", SenderID: "a", Text: "hi", Kind: models.MessageText, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.SaveMessage(ctx, &msg))
	}
	other := models.ChatMessage{ID: "99", RoomID: "OTHER", SenderID: "a", Text: "elsewhere", Kind: models.MessageText, CreatedAt: base.Add(time.Minute)}
	require.NoError(t, s.SaveMessage(ctx, &other))

	latest, err := s.GetLatestMessages(ctx, "R", "b", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, []string{"03", "04"}, []string{latest[0].ID, latest[1].ID})

	all, err := s.GetLatestMessages(ctx, "R", "b", 50)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := s.GetLatestMessages(ctx, "EMPTY", "b", 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}
