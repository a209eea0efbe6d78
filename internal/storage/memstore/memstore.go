// Package memstore is an in-process implementation of storage.Storage. It is
// used by tests and by single-node development runs (STORAGE_DRIVER=memory).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"speakroom/backend/internal/models"
	"speakroom/backend/internal/storage"

	"github.com/google/uuid"
)

// Store keeps every table in maps guarded by one mutex, so each method is
// atomic with respect to the others.
type Store struct {
	mu sync.RWMutex

	users        map[string]models.User
	requests     map[string]models.SpeakingRequest
	rooms        map[string]models.Room
	participants map[string]models.Participant
	sessionLogs  []models.SessionLog
	likes        map[string]models.Like
	messages     []models.ChatMessage
}

var _ storage.Storage = (*Store)(nil)

func New() *Store {
	return &Store{
		users:        make(map[string]models.User),
		requests:     make(map[string]models.SpeakingRequest),
		rooms:        make(map[string]models.Room),
		participants: make(map[string]models.Participant),
		likes:        make(map[string]models.Like),
	}
}

// SessionLogs returns a copy of the recorded session logs.
func (s *Store) SessionLogs() []models.SessionLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SessionLog(nil), s.sessionLogs...)
}

// --- Users ---

func (s *Store) UpsertUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if existing, ok := s.users[user.ID]; ok {
		existing.DisplayName = user.DisplayName
		existing.UpdatedAt = now
		s.users[user.ID] = existing
		*user = existing
		return nil
	}
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUsersByIDs(_ context.Context, userIDs []string) (map[string]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.User, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *Store) SetTelegramChatID(_ context.Context, userID string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.TelegramChatID = chatID
	s.users[userID] = u
	return nil
}

// --- Requests ---

func (s *Store) CreateRequest(_ context.Context, req *models.SpeakingRequest, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.PairKey(req.SenderID, req.ReceiverID)
	for id, r := range s.requests {
		if r.PairKey != key || r.Status != models.RequestPending {
			continue
		}
		if r.IsExpired(now) {
			resolved := now
			r.Status = models.RequestCancelled
			r.ResolvedAt = &resolved
			s.requests[id] = r
			continue
		}
		return storage.ErrDuplicate
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.PairKey = key
	s.requests[req.ID] = *req
	return nil
}

func (s *Store) GetRequest(_ context.Context, requestID string) (*models.SpeakingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (s *Store) TransitionRequest(_ context.Context, requestID string, from, to models.RequestStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok || r.Status != from || r.IsExpired(at) {
		return false, nil
	}
	r.Status = to
	if to.IsTerminal() {
		resolved := at
		r.ResolvedAt = &resolved
	} else {
		r.ResolvedAt = nil
	}
	s.requests[requestID] = r
	return true, nil
}

func (s *Store) SetRequestRoom(_ context.Context, requestID, roomCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return storage.ErrNotFound
	}
	r.RoomCode = roomCode
	s.requests[requestID] = r
	return nil
}

func (s *Store) ListPendingRequests(_ context.Context, userID string, now time.Time) ([]models.SpeakingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SpeakingRequest
	for _, r := range s.requests {
		if r.Status == models.RequestPending && !r.IsExpired(now) && r.Involves(userID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ExpirePendingRequests(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.requests {
		if r.IsExpired(now) {
			resolved := now
			r.Status = models.RequestCancelled
			r.ResolvedAt = &resolved
			s.requests[id] = r
			n++
		}
	}
	return n, nil
}

// --- Rooms ---

func (s *Store) IsRoomCodeActive(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRoomByCode(code) != nil, nil
}

func (s *Store) activeRoomByCode(code string) *models.Room {
	for _, r := range s.rooms {
		if r.RoomCode == code && r.IsActive() {
			return &r
		}
	}
	return nil
}

func (s *Store) CreateRoom(_ context.Context, room *models.Room, participants []models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.IsActive() && s.activeRoomByCode(room.RoomCode) != nil {
		return storage.ErrDuplicate
	}
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	s.rooms[room.ID] = *room
	for i := range participants {
		participants[i].RoomID = room.ID
		if participants[i].ID == "" {
			participants[i].ID = uuid.New().String()
		}
		s.participants[participants[i].ID] = participants[i]
	}
	return nil
}

func (s *Store) GetRoomByCode(_ context.Context, code string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r := s.activeRoomByCode(code); r != nil {
		return r, nil
	}
	var latest *models.Room
	for _, r := range s.rooms {
		if r.RoomCode != code {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			room := r
			latest = &room
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest, nil
}

func (s *Store) ListActiveRoomCodes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var codes []string
	for _, r := range s.rooms {
		if r.IsActive() {
			codes = append(codes, r.RoomCode)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func (s *Store) EndRoom(_ context.Context, roomID, endedBy string, endedAt time.Time) (*models.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false, storage.ErrNotFound
	}
	if !room.IsActive() {
		return &room, false, nil
	}

	for id, p := range s.participants {
		if p.RoomID == roomID && p.IsActive() {
			left := endedAt
			p.LeftAt = &left
			p.IsOnline = false
			s.participants[id] = p
		}
	}

	duration := int(endedAt.Sub(room.CreatedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	room.Status = models.RoomEnded
	room.EndedAt = &endedAt
	room.EndedBy = endedBy
	room.DurationSeconds = &duration
	s.rooms[roomID] = room
	return &room, true, nil
}

func (s *Store) ListParticipants(_ context.Context, roomID string) ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Participant
	for _, p := range s.participants {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) SaveParticipant(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	s.participants[p.ID] = *p
	return nil
}

func (s *Store) LeaveRoom(_ context.Context, roomID, userID string, leftAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for id, p := range s.participants {
		if p.RoomID == roomID && p.UserID == userID && p.IsActive() {
			left := leftAt
			p.LeftAt = &left
			p.IsOnline = false
			s.participants[id] = p
			changed = true
		}
	}
	return changed, nil
}

func (s *Store) SetParticipantOnline(_ context.Context, roomID, userID string, online bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for id, p := range s.participants {
		if p.RoomID == roomID && p.UserID == userID && p.IsActive() {
			p.IsOnline = online
			s.participants[id] = p
			changed = true
		}
	}
	return changed, nil
}

func (s *Store) SaveSessionLog(_ context.Context, entry *models.SessionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uint(len(s.sessionLogs) + 1)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.sessionLogs = append(s.sessionLogs, *entry)
	return nil
}

// --- Likes ---

func likeKey(likerID, likedUserID string) string {
	return likerID + "\x00" + likedUserID
}

func (s *Store) AddLike(_ context.Context, like *models.Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := likeKey(like.LikerID, like.LikedUserID)
	if _, ok := s.likes[key]; ok {
		return storage.ErrDuplicate
	}
	if like.ID == "" {
		like.ID = uuid.New().String()
	}
	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now()
	}
	s.likes[key] = *like
	return nil
}

func (s *Store) RemoveLike(_ context.Context, likerID, likedUserID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := likeKey(likerID, likedUserID)
	if _, ok := s.likes[key]; !ok {
		return false, nil
	}
	delete(s.likes, key)
	return true, nil
}

func (s *Store) HasLike(_ context.Context, likerID, likedUserID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.likes[likeKey(likerID, likedUserID)]
	return ok, nil
}

func (s *Store) CountLikes(_ context.Context, likedUserID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, l := range s.likes {
		if l.LikedUserID == likedUserID {
			n++
		}
	}
	return n, nil
}

// --- Chat ---

func (s *Store) SaveMessage(_ context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == msg.ID {
			return storage.ErrDuplicate
		}
	}
	s.messages = append(s.messages, *msg)
	return nil
}

// visibleMessages returns the room's messages viewerID can see, oldest
// first. Callers hold s.mu.
func (s *Store) visibleMessages(roomID, viewerID string) []models.ChatMessage {
	var visible []models.ChatMessage
	for _, m := range s.messages {
		if m.RoomID == roomID && m.VisibleTo(viewerID) {
			visible = append(visible, m)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		if visible[i].CreatedAt.Equal(visible[j].CreatedAt) {
			return visible[i].ID < visible[j].ID
		}
		return visible[i].CreatedAt.Before(visible[j].CreatedAt)
	})
	return visible
}

func (s *Store) GetMessages(_ context.Context, roomID, viewerID string, limit, offset int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := s.visibleMessages(roomID, viewerID)
	if offset >= len(visible) {
		return []models.ChatMessage{}, nil
	}
	visible = visible[offset:]
	if limit > 0 && limit < len(visible) {
		visible = visible[:limit]
	}
	return visible, nil
}

func (s *Store) GetLatestMessages(_ context.Context, roomID, viewerID string, limit int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := s.visibleMessages(roomID, viewerID)
	if limit > 0 && limit < len(visible) {
		visible = visible[len(visible)-limit:]
	}
	if visible == nil {
		return []models.ChatMessage{}, nil
	}
	return visible, nil
}

func (s *Store) MarkMessagesRead(_ context.Context, roomID, userID, fromSenderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i, m := range s.messages {
		if m.RoomID != roomID || m.IsRead {
			continue
		}
		var match bool
		if fromSenderID != "" {
			match = m.IsPrivate && m.SenderID == fromSenderID && m.ReceiverID == userID
		} else {
			match = !m.IsPrivate && m.SenderID != userID
		}
		if match {
			s.messages[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Store) UnreadCounts(_ context.Context, roomID, userID string) (models.UnreadCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := models.UnreadCounts{Private: map[string]int{}}
	for _, m := range s.messages {
		if m.RoomID != roomID || m.IsRead || m.SenderID == userID {
			continue
		}
		switch {
		case !m.IsPrivate:
			counts.Group++
		case m.ReceiverID == userID:
			counts.Private[m.SenderID]++
		}
	}
	return counts, nil
}
