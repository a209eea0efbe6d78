package speaking

import (
	"context"
	"errors"
	"sync"

	"speakroom/backend/internal/metrics"
	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/storage"

	"github.com/rs/zerolog"
)

// LikePhase says where a LikeUpdate came from.
type LikePhase string

const (
	// LikeOptimistic is applied before the store confirms the toggle.
	LikeOptimistic LikePhase = "optimistic"
	// LikeConfirmed is re-derived from the like rows.
	LikeConfirmed LikePhase = "confirmed"
	// LikeReverted undoes an optimistic update after a failed toggle.
	LikeReverted LikePhase = "reverted"
)

// LikeUpdate is sent to listeners whenever a like state is set or re-derived.
type LikeUpdate struct {
	LikerID  string           `json:"liker_id"`
	TargetID string           `json:"target_id"`
	State    models.LikeState `json:"state"`
	Phase    LikePhase        `json:"phase"`
}

type likeKey struct {
	liker  string
	target string
}

type likeEntry struct {
	state models.LikeState
	// inflight counts toggles that have not finished. The entry is dropped
	// when it reaches zero.
	inflight int
}

// LikeAggregator serves like state with optimistic updates. Only keys with a
// toggle in flight are cached; every other read is derived from the like rows
// (HasLike and CountLikes), so likes made elsewhere are always visible and
// duplicate or reordered events cannot drift the result.
type LikeAggregator struct {
	Storage storage.Storage
	Bus     realtime.Bus
	Logger  zerolog.Logger

	mu        sync.Mutex
	pending   map[likeKey]*likeEntry
	listeners []func(LikeUpdate)
}

func NewLikeAggregator(s storage.Storage, bus realtime.Bus, logger zerolog.Logger) *LikeAggregator {
	return &LikeAggregator{
		Storage: s,
		Bus:     bus,
		Logger:  logger,
		pending: make(map[likeKey]*likeEntry),
	}
}

// OnChange registers fn to receive every state change.
func (a *LikeAggregator) OnChange(fn func(LikeUpdate)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// State returns the optimistic state of (likerID, targetID) while a toggle
// for it is in flight.
func (a *LikeAggregator) State(likerID, targetID string) (models.LikeState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.pending[likeKey{likerID, targetID}]
	if !ok {
		return models.LikeState{}, false
	}
	return e.state, true
}

// Get returns the optimistic state during a toggle and the stored state
// otherwise.
func (a *LikeAggregator) Get(ctx context.Context, likerID, targetID string) (models.LikeState, error) {
	if s, ok := a.State(likerID, targetID); ok {
		return s, nil
	}
	return a.derive(ctx, likerID, targetID)
}

// Toggle likes targetID if likerID has not, or unlikes it otherwise. The
// flipped state is visible through State and listeners before the store
// round-trip; it is then reconciled with the like rows, or reverted on error.
// The like row records room as the place it happened; the resulting event is
// broadcast on the room's channel.
func (a *LikeAggregator) Toggle(ctx context.Context, room *models.Room, likerID, targetID string) (models.LikeState, error) {
	if likerID == targetID {
		return models.LikeState{}, ErrSelfLike
	}

	previous, err := a.Get(ctx, likerID, targetID)
	if err != nil {
		return models.LikeState{}, err
	}

	optimistic := previous
	optimistic.HasLiked = !previous.HasLiked
	if optimistic.HasLiked {
		optimistic.LikesCount++
	} else if optimistic.LikesCount > 0 {
		optimistic.LikesCount--
	}
	key := likeKey{likerID, targetID}
	a.begin(key, optimistic)

	var roomID, roomCode string
	if room != nil {
		roomID, roomCode = room.ID, room.RoomCode
	}

	var opErr error
	if optimistic.HasLiked {
		opErr = a.Storage.AddLike(ctx, &models.Like{RoomID: roomID, LikerID: likerID, LikedUserID: targetID})
		if errors.Is(opErr, storage.ErrDuplicate) {
			opErr = nil
		}
	} else {
		_, opErr = a.Storage.RemoveLike(ctx, likerID, targetID)
	}

	if opErr != nil {
		metrics.LikesToggled.WithLabelValues("reverted").Inc()
		a.finish(key, previous, LikeReverted)
		a.Logger.Warn().Err(opErr).Str("liker_id", likerID).Str("target_id", targetID).Msg("like toggle failed, reverted")
		// Re-fetch in case the failed write partially landed.
		state := previous
		if fresh, err := a.derive(ctx, likerID, targetID); err != nil {
			a.Logger.Warn().Err(err).Msg("like re-fetch after failure failed")
		} else {
			state = fresh
		}
		return state, persistenceErr("toggle like", opErr)
	}

	var ev models.Event
	if optimistic.HasLiked {
		metrics.LikesToggled.WithLabelValues("like").Inc()
		ev = models.LikeAddedEvent{RoomID: roomID, LikerID: likerID, LikedUserID: targetID}
	} else {
		metrics.LikesToggled.WithLabelValues("unlike").Inc()
		ev = models.LikeRemovedEvent{RoomID: roomID, LikerID: likerID, LikedUserID: targetID}
	}

	authoritative, err := a.derive(ctx, likerID, targetID)
	if err != nil {
		// The write succeeded; report the optimistic value.
		a.Logger.Warn().Err(err).Msg("like reconcile failed")
		authoritative = optimistic
	}
	a.finish(key, authoritative, LikeConfirmed)

	if a.Bus != nil && roomCode != "" {
		if err := a.Bus.Publish(ctx, realtime.RoomChannel(roomCode), ev); err != nil {
			a.Logger.Warn().Err(err).Msg("like publish failed")
		}
	}
	return authoritative, nil
}

// Reconcile re-derives (likerID, targetID) from the like rows and tells the
// listeners. While a toggle for the key is in flight the optimistic value is
// returned instead and nothing is emitted.
func (a *LikeAggregator) Reconcile(ctx context.Context, likerID, targetID string) (models.LikeState, error) {
	if s, ok := a.State(likerID, targetID); ok {
		return s, nil
	}
	state, err := a.derive(ctx, likerID, targetID)
	if err != nil {
		return models.LikeState{}, err
	}

	a.mu.Lock()
	listeners := a.listeners
	a.mu.Unlock()
	emit(listeners, LikeUpdate{LikerID: likerID, TargetID: targetID, State: state, Phase: LikeConfirmed})
	return state, nil
}

// HandleEvent reconciles viewerID's view of the target of a like event.
// Re-applying the same event is harmless.
func (a *LikeAggregator) HandleEvent(ctx context.Context, viewerID string, ev models.Event) {
	var target string
	switch e := ev.(type) {
	case models.LikeAddedEvent:
		target = e.LikedUserID
	case models.LikeRemovedEvent:
		target = e.LikedUserID
	default:
		return
	}
	if viewerID == target {
		return
	}
	if _, err := a.Reconcile(ctx, viewerID, target); err != nil {
		a.Logger.Warn().Err(err).Str("target_id", target).Msg("like reconcile failed")
	}
}

func (a *LikeAggregator) derive(ctx context.Context, likerID, targetID string) (models.LikeState, error) {
	has, err := a.Storage.HasLike(ctx, likerID, targetID)
	if err != nil {
		return models.LikeState{}, persistenceErr("load like", err)
	}
	n, err := a.Storage.CountLikes(ctx, targetID)
	if err != nil {
		return models.LikeState{}, persistenceErr("count likes", err)
	}
	return models.LikeState{HasLiked: has, LikesCount: int(n)}, nil
}

func (a *LikeAggregator) begin(key likeKey, state models.LikeState) {
	a.mu.Lock()
	e, ok := a.pending[key]
	if !ok {
		e = &likeEntry{}
		a.pending[key] = e
	}
	e.state = state
	e.inflight++
	listeners := a.listeners
	a.mu.Unlock()

	emit(listeners, LikeUpdate{LikerID: key.liker, TargetID: key.target, State: state, Phase: LikeOptimistic})
}

func (a *LikeAggregator) finish(key likeKey, state models.LikeState, phase LikePhase) {
	a.mu.Lock()
	if e, ok := a.pending[key]; ok {
		e.state = state
		e.inflight--
		if e.inflight <= 0 {
			delete(a.pending, key)
		}
	}
	listeners := a.listeners
	a.mu.Unlock()

	emit(listeners, LikeUpdate{LikerID: key.liker, TargetID: key.target, State: state, Phase: phase})
}

func emit(listeners []func(LikeUpdate), u LikeUpdate) {
	for _, fn := range listeners {
		fn(u)
	}
}
