package speaking

import (
	"context"
	"errors"
	"sync"

	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/storage"

	"github.com/rs/zerolog"
)

// Coordinator composes the ledger, lifecycle and like aggregator behind the
// operations the API layer exposes. It keeps no state of its own: room views
// are re-derived from storage whenever a room event arrives.
type Coordinator struct {
	Requests *RequestLedger
	Rooms    *RoomLifecycle
	Likes    *LikeAggregator
	Bus      realtime.Bus
	Logger   zerolog.Logger
}

func NewCoordinator(s storage.Storage, bus realtime.Bus, logger zerolog.Logger) *Coordinator {
	rooms := NewRoomLifecycle(s, bus, logger.With().Str("component", "rooms").Logger())
	return &Coordinator{
		Requests: NewRequestLedger(s, bus, rooms, logger.With().Str("component", "requests").Logger()),
		Rooms:    rooms,
		Likes:    NewLikeAggregator(s, bus, logger.With().Str("component", "likes").Logger()),
		Bus:      bus,
		Logger:   logger,
	}
}

// CanJoin reports, as an error, whether userID may join the room.
func (c *Coordinator) CanJoin(ctx context.Context, code, userID string) error {
	_, err := c.Rooms.CanAccess(ctx, code, userID)
	return err
}

// CurrentView is the room state for userID.
func (c *Coordinator) CurrentView(ctx context.Context, code, userID string) (*models.RoomView, error) {
	return c.Rooms.GetView(ctx, code, userID)
}

// RespondToRequest resolves a request; on accept it also returns the new
// room as seen by the actor.
func (c *Coordinator) RespondToRequest(ctx context.Context, requestID, actorID string, outcome models.RequestStatus) (*models.SpeakingRequest, *models.RoomView, error) {
	req, err := c.Requests.Resolve(ctx, requestID, actorID, outcome)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != models.RequestAccepted {
		return req, nil, nil
	}
	view, err := c.Rooms.GetView(ctx, req.RoomCode, actorID)
	if err != nil {
		return req, nil, err
	}
	return req, view, nil
}

// CreateRoom opens a room directly, without a request.
func (c *Coordinator) CreateRoom(ctx context.Context, creatorID, inviteeID string) (*models.RoomView, error) {
	room, err := c.Rooms.Create(ctx, creatorID, inviteeID)
	if err != nil {
		return nil, err
	}
	return c.Rooms.GetView(ctx, room.RoomCode, creatorID)
}

// ToggleLike toggles likerID's like of targetID. Both must belong to the room.
func (c *Coordinator) ToggleLike(ctx context.Context, code, likerID, targetID string) (models.LikeState, error) {
	if likerID == targetID {
		return models.LikeState{}, ErrSelfLike
	}
	room, err := c.Rooms.CanAccess(ctx, code, likerID)
	if err != nil {
		return models.LikeState{}, err
	}
	if _, err := c.Rooms.CanAccess(ctx, code, targetID); err != nil {
		return models.LikeState{}, err
	}
	return c.Likes.Toggle(ctx, room, likerID, targetID)
}

// LikeState returns viewerID's view of targetID's likes.
func (c *Coordinator) LikeState(ctx context.Context, code, viewerID, targetID string) (models.LikeState, error) {
	if _, err := c.Rooms.CanAccess(ctx, code, viewerID); err != nil {
		return models.LikeState{}, err
	}
	return c.Likes.Get(ctx, viewerID, targetID)
}

// RoomUpdate is pushed to watchers. Exactly one field is set.
type RoomUpdate struct {
	View  *models.RoomView       `json:"view,omitempty"`
	Ended *models.RoomEndedEvent `json:"ended,omitempty"`
}

// RoomWatch is a caller-owned feed of room updates. Updates is closed after
// the room ends or Close is called.
type RoomWatch struct {
	updates   chan RoomUpdate
	sub       realtime.Subscription
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (w *RoomWatch) Updates() <-chan RoomUpdate { return w.updates }

// Close stops the watch and releases its subscription.
func (w *RoomWatch) Close() {
	w.closeOnce.Do(func() {
		w.cancel()
		w.sub.Close()
	})
}

// Watch subscribes userID to the room's state. The first update is the
// current view; later ones follow participant and presence events. A room
// ended event is delivered as the final update.
func (c *Coordinator) Watch(ctx context.Context, code, userID string) (*RoomWatch, error) {
	if _, err := c.Rooms.CanAccess(ctx, code, userID); err != nil {
		return nil, err
	}

	// Subscribe before reading the view so nothing between the two is lost.
	sub, err := c.Bus.Subscribe(ctx, realtime.RoomChannel(code))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &RoomWatch{
		updates: make(chan RoomUpdate, 16),
		sub:     sub,
		cancel:  cancel,
	}
	go c.runWatch(ctx, w, code, userID)
	return w, nil
}

func (c *Coordinator) runWatch(ctx context.Context, w *RoomWatch, code, userID string) {
	defer close(w.updates)
	defer w.Close()

	send := func(u RoomUpdate) bool {
		select {
		case w.updates <- u:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// refresh pushes a freshly derived view; it returns false when the watch
	// should stop.
	refresh := func() bool {
		view, err := c.Rooms.GetView(ctx, code, userID)
		switch {
		case errors.Is(err, ErrRoomEnded):
			send(RoomUpdate{Ended: &models.RoomEndedEvent{RoomCode: code}})
			return false
		case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrRoomNotFound):
			return false
		case err != nil:
			c.Logger.Warn().Err(err).Str("room_code", code).Msg("room view refresh failed")
			return true
		}
		return send(RoomUpdate{View: view})
	}

	if !refresh() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.sub.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case models.RoomEndedEvent:
				send(RoomUpdate{Ended: &e})
				return
			case models.ParticipantJoinedEvent, models.ParticipantLeftEvent, models.PresenceUpdateEvent:
				if !refresh() {
					return
				}
			case models.LikeAddedEvent, models.LikeRemovedEvent:
				c.Likes.HandleEvent(ctx, userID, ev)
			}
		}
	}
}
