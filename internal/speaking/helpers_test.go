package speaking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/speaking"
	"speakroom/backend/internal/storage/memstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock shared by every service in a harness.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store *memstore.Store
	bus   *realtime.MemoryBus
	clock *testClock
	coord *speaking.Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memstore.New()
	bus := realtime.NewMemoryBus(zerolog.Nop())
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	coord := speaking.NewCoordinator(store, bus, zerolog.Nop())
	coord.Rooms.Now = clock.Now
	coord.Requests.Now = clock.Now

	for _, u := range []models.User{{ID: "alice", DisplayName: "Alice"}, {ID: "bob", DisplayName: "Bob"}, {ID: "carol", DisplayName: "Carol"}} {
		user := u
		require.NoError(t, store.UpsertUser(context.Background(), &user))
	}

	return &harness{store: store, bus: bus, clock: clock, coord: coord}
}

// createRoom opens a room by alice with bob pre-invited.
func (h *harness) createRoom(t *testing.T) *models.Room {
	t.Helper()
	room, err := h.coord.Rooms.Create(context.Background(), "alice", "bob")
	require.NoError(t, err)
	return room
}

func activeUserIDs(view *models.RoomView) []string {
	ids := make([]string, 0, len(view.Participants))
	for _, p := range view.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}
