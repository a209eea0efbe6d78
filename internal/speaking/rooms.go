package speaking

import (
	"context"
	"errors"
	"time"

	"speakroom/backend/internal/config"
	"speakroom/backend/internal/metrics"
	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/storage"

	"github.com/rs/zerolog"
)

// RoomLifecycle creates rooms, moves participants in and out, ends rooms and
// tracks participant presence.
//
// Access policy: the creator and every user who ever had a participant row
// may (re)join and view the room while it is active. Once ended, nobody can.
type RoomLifecycle struct {
	Storage storage.Storage
	Bus     realtime.Bus
	Codes   *RoomCodeAllocator
	Now     func() time.Time
	Logger  zerolog.Logger
}

func NewRoomLifecycle(s storage.Storage, bus realtime.Bus, logger zerolog.Logger) *RoomLifecycle {
	return &RoomLifecycle{
		Storage: s,
		Bus:     bus,
		Codes:   NewRoomCodeAllocator(s, logger),
		Now:     time.Now,
		Logger:  logger,
	}
}

// Create opens a room owned by creatorID. If inviteeID is set the invitee is
// pre-registered as an offline participant. The room and its participant rows
// are written in one transaction.
func (l *RoomLifecycle) Create(ctx context.Context, creatorID, inviteeID string) (*models.Room, error) {
	if inviteeID == creatorID {
		inviteeID = ""
	}

	for attempt := 0; attempt < config.MaxRoomCodeAttempts; attempt++ {
		code, err := l.Codes.Allocate(ctx)
		if err != nil {
			return nil, err
		}

		now := l.Now()
		room := &models.Room{
			RoomCode:  code,
			CreatorID: creatorID,
			Status:    models.RoomActive,
			CreatedAt: now,
		}
		participants := []models.Participant{{
			UserID:   creatorID,
			Role:     models.RoleCreator,
			JoinedAt: now,
			IsOnline: true,
		}}
		if inviteeID != "" {
			participants = append(participants, models.Participant{
				UserID:   inviteeID,
				Role:     models.RoleParticipant,
				JoinedAt: now,
			})
		}

		err = l.Storage.CreateRoom(ctx, room, participants)
		if errors.Is(err, storage.ErrDuplicate) {
			// Another room took the code between the check and the insert.
			metrics.RoomCodeCollisions.Inc()
			continue
		}
		if err != nil {
			return nil, persistenceErr("create room", err)
		}

		metrics.RoomsCreated.Inc()
		l.Logger.Info().Str("room_code", room.RoomCode).Str("creator_id", creatorID).Str("invitee_id", inviteeID).Msg("room created")
		return room, nil
	}
	return nil, ErrAllocationExhausted
}

// loadRoom fetches a room by code and maps storage errors.
func (l *RoomLifecycle) loadRoom(ctx context.Context, code string) (*models.Room, error) {
	if !ValidRoomCode(code) {
		return nil, ErrRoomNotFound
	}
	room, err := l.Storage.GetRoomByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, persistenceErr("load room", err)
	}
	return room, nil
}

// loadActiveRoom is loadRoom plus ErrRoomEnded for ended rooms.
func (l *RoomLifecycle) loadActiveRoom(ctx context.Context, code string) (*models.Room, []models.Participant, error) {
	room, err := l.loadRoom(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if !room.IsActive() {
		return nil, nil, ErrRoomEnded
	}
	parts, err := l.Storage.ListParticipants(ctx, room.ID)
	if err != nil {
		return nil, nil, persistenceErr("list participants", err)
	}
	return room, parts, nil
}

func hasAccess(room *models.Room, parts []models.Participant, userID string) bool {
	if room.CreatorID == userID {
		return true
	}
	for _, p := range parts {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func activeRow(parts []models.Participant, userID string) *models.Participant {
	for i := range parts {
		if parts[i].UserID == userID && parts[i].IsActive() {
			return &parts[i]
		}
	}
	return nil
}

// CanAccess returns the active room if userID may enter it.
func (l *RoomLifecycle) CanAccess(ctx context.Context, code, userID string) (*models.Room, error) {
	room, parts, err := l.loadActiveRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if !hasAccess(room, parts, userID) {
		return nil, ErrNotAuthorized
	}
	return room, nil
}

// Join marks userID online in the room, reusing the active participant row or
// inserting a new one for a returning user.
func (l *RoomLifecycle) Join(ctx context.Context, code, userID string) (*models.RoomView, error) {
	room, parts, err := l.loadActiveRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if !hasAccess(room, parts, userID) {
		return nil, ErrNotAuthorized
	}

	now := l.Now()
	p := activeRow(parts, userID)
	if p == nil {
		role := models.RoleParticipant
		if room.CreatorID == userID {
			role = models.RoleCreator
		}
		p = &models.Participant{RoomID: room.ID, UserID: userID, Role: role}
	}
	p.IsOnline = true
	p.JoinedAt = now
	if err := l.Storage.SaveParticipant(ctx, p); err != nil {
		return nil, persistenceErr("save participant", err)
	}

	l.publish(ctx, code, models.ParticipantJoinedEvent{RoomCode: code, UserID: userID, Role: p.Role, JoinedAt: now})
	l.trackPresence(ctx, code, userID, true)

	return l.GetView(ctx, code, userID)
}

// Leave stamps the user's active row as left. A duration, if given, is
// recorded as a session log. Leaving an ended room or leaving twice is a
// no-op.
func (l *RoomLifecycle) Leave(ctx context.Context, code, userID string, sessionDurationSeconds *int) error {
	room, err := l.loadRoom(ctx, code)
	if err != nil {
		return err
	}
	if !room.IsActive() {
		return nil
	}

	now := l.Now()
	changed, err := l.Storage.LeaveRoom(ctx, room.ID, userID, now)
	if err != nil {
		return persistenceErr("leave room", err)
	}

	if sessionDurationSeconds != nil && *sessionDurationSeconds > 0 {
		entry := &models.SessionLog{RoomID: room.ID, UserID: userID, DurationSeconds: *sessionDurationSeconds, CreatedAt: now}
		if err := l.Storage.SaveSessionLog(ctx, entry); err != nil {
			l.Logger.Warn().Err(err).Str("room_code", code).Str("user_id", userID).Msg("failed to save session log")
		} else {
			metrics.SessionDuration.Observe(float64(*sessionDurationSeconds))
		}
	}

	if !changed {
		return nil
	}
	l.trackPresence(ctx, code, userID, false)
	l.publish(ctx, code, models.ParticipantLeftEvent{RoomCode: code, UserID: userID, LeftAt: now})
	return nil
}

// End terminates the room. Only the creator or an active participant may end
// it. Ending an already-ended room succeeds without changes.
func (l *RoomLifecycle) End(ctx context.Context, code, actorID string) error {
	room, err := l.loadRoom(ctx, code)
	if err != nil {
		return err
	}
	if !room.IsActive() {
		return nil
	}

	parts, err := l.Storage.ListParticipants(ctx, room.ID)
	if err != nil {
		return persistenceErr("list participants", err)
	}
	if room.CreatorID != actorID && activeRow(parts, actorID) == nil {
		return ErrNotAuthorized
	}

	ended, transitioned, err := l.Storage.EndRoom(ctx, room.ID, actorID, l.Now())
	if err != nil {
		return persistenceErr("end room", err)
	}
	if !transitioned {
		return nil
	}

	metrics.RoomsEnded.Inc()
	for _, p := range parts {
		if p.IsActive() {
			if _, err := l.Bus.UntrackPresence(ctx, realtime.RoomChannel(code), p.UserID); err != nil {
				l.Logger.Warn().Err(err).Str("room_code", code).Msg("failed to clear presence")
			}
		}
	}

	ev := models.RoomEndedEvent{RoomCode: code, EndedBy: actorID}
	if ended.EndedAt != nil {
		ev.EndedAt = *ended.EndedAt
	}
	if ended.DurationSeconds != nil {
		ev.DurationSeconds = *ended.DurationSeconds
	}
	l.publish(ctx, code, ev)
	l.Logger.Info().Str("room_code", code).Str("ended_by", actorID).Int("duration_seconds", ev.DurationSeconds).Msg("room ended")
	return nil
}

// GetView derives the room state for requestingUserID.
func (l *RoomLifecycle) GetView(ctx context.Context, code, requestingUserID string) (*models.RoomView, error) {
	room, parts, err := l.loadActiveRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if !hasAccess(room, parts, requestingUserID) {
		return nil, ErrNotAuthorized
	}

	ids := []string{room.CreatorID}
	for _, p := range parts {
		ids = append(ids, p.UserID)
	}
	users, err := l.Storage.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, persistenceErr("load users", err)
	}
	nameOf := func(id string) string {
		if u, ok := users[id]; ok {
			return u.DisplayName
		}
		return ""
	}

	view := &models.RoomView{
		Room:         *room,
		Creator:      models.UserInfo{ID: room.CreatorID, DisplayName: nameOf(room.CreatorID)},
		Participants: []models.ParticipantView{},
		ViewerID:     requestingUserID,
	}
	for _, p := range parts {
		if !p.IsActive() {
			continue
		}
		pv := models.ParticipantView{
			UserID:      p.UserID,
			DisplayName: nameOf(p.UserID),
			Role:        p.Role,
			JoinedAt:    p.JoinedAt,
			IsOnline:    p.IsOnline,
		}
		view.Participants = append(view.Participants, pv)
		if view.OtherUser == nil && p.UserID != requestingUserID {
			other := pv
			view.OtherUser = &other
		}
	}
	return view, nil
}

// SetPresence flips the online flag of the user's active row. Concurrent
// updates are last-writer-wins.
func (l *RoomLifecycle) SetPresence(ctx context.Context, code, userID string, online bool) error {
	room, err := l.CanAccess(ctx, code, userID)
	if err != nil {
		return err
	}
	changed, err := l.Storage.SetParticipantOnline(ctx, room.ID, userID, online)
	if err != nil {
		return persistenceErr("set presence", err)
	}
	if !changed {
		return ErrNotAuthorized
	}
	l.trackPresence(ctx, code, userID, online)
	return nil
}

func (l *RoomLifecycle) trackPresence(ctx context.Context, code, userID string, online bool) {
	channel := realtime.RoomChannel(code)
	var (
		set []string
		err error
	)
	if online {
		set, err = l.Bus.TrackPresence(ctx, channel, userID)
	} else {
		set, err = l.Bus.UntrackPresence(ctx, channel, userID)
	}
	if err != nil {
		l.Logger.Warn().Err(err).Str("room_code", code).Str("user_id", userID).Msg("presence update failed")
		return
	}
	l.publish(ctx, code, models.PresenceUpdateEvent{RoomCode: code, Online: set})
}

// publish broadcasts after the state change is committed. A failed broadcast
// is logged only; clients resync from storage on reconnect.
func (l *RoomLifecycle) publish(ctx context.Context, code string, ev models.Event) {
	if err := l.Bus.Publish(ctx, realtime.RoomChannel(code), ev); err != nil {
		l.Logger.Warn().Err(err).Str("room_code", code).Str("kind", string(ev.Kind())).Msg("realtime publish failed")
	}
}
