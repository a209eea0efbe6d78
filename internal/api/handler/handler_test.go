package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"speakroom/backend/internal/api/handler"
	"speakroom/backend/internal/chathub"
	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/speaking"
	"speakroom/backend/internal/storage/memstore"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router *gin.Engine
	store  *memstore.Store
	auth   *handler.Authenticator
	tokens map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	bus := realtime.NewMemoryBus(zerolog.Nop())
	coord := speaking.NewCoordinator(store, bus, zerolog.Nop())
	chat := chathub.NewChannel(store, bus, coord.Rooms, zerolog.Nop())
	hub := chathub.NewHub(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	auth := handler.NewAuthenticator("test-secret")
	h := handler.NewHandler(coord, chat, hub, store, auth, zerolog.Nop())
	h.BaseContext = ctx

	env := &testEnv{
		router: handler.NewRouter(h, true),
		store:  store,
		auth:   auth,
		tokens: map[string]string{},
	}
	for id, name := range map[string]string{"alice": "Alice", "bob": "Bob", "carol": "Carol"} {
		token, err := auth.IssueToken(id, name)
		require.NoError(t, err)
		env.tokens[id] = token
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[user])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type roomResponse struct {
	Room    models.RoomView `json:"room"`
	RoomURL string          `json:"room_url"`
}

func (e *testEnv) createRoom(t *testing.T, creator, invitee string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/rooms", creator, gin.H{"invitee_id": invitee})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[roomResponse](t, w)
	return resp.Room.Room.RoomCode
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "speakroom_http_requests_total")
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode[handler.ErrorResponse](t, w).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/requests?token="+env.tokens["alice"], nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	user, err := env.store.GetUserByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.DisplayName)
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/token", "", gin.H{"name": "Dana"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}](t, w)
	assert.NotEmpty(t, resp.UserID)

	claims, err := env.auth.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, claims.Subject)
	assert.Equal(t, "Dana", claims.Name)

	w = env.do(t, http.MethodPost, "/api/token", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	other := handler.NewAuthenticator("other-secret")
	_, err = other.Parse(resp.Token)
	assert.ErrorIs(t, err, handler.ErrInvalidToken)
}

func TestRequestFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/requests", "alice", gin.H{"receiver_id": "bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[models.SpeakingRequest](t, w)
	assert.Equal(t, models.RequestPending, req.Status)

	w = env.do(t, http.MethodPost, "/api/requests", "bob", gin.H{"receiver_id": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_pending", decode[handler.ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodPost, "/api/requests", "alice", gin.H{"receiver_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "self_request", decode[handler.ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodGet, "/api/requests", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[speaking.PendingRequests](t, w)
	require.Len(t, pending.Incoming, 1)
	assert.Empty(t, pending.Outgoing)

	w = env.do(t, http.MethodPost, "/api/requests/"+req.ID+"/accept", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/requests/"+req.ID+"/accept", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := decode[struct {
		Request models.SpeakingRequest `json:"request"`
		Room    models.RoomView        `json:"room"`
		RoomURL string                 `json:"room_url"`
	}](t, w)
	assert.Equal(t, models.RequestAccepted, accepted.Request.Status)
	assert.Equal(t, "alice", accepted.Room.Room.CreatorID)
	assert.Len(t, accepted.Room.Participants, 2)
	assert.Equal(t, "/speaking/room/"+accepted.Request.RoomCode, accepted.RoomURL)

	w = env.do(t, http.MethodPost, "/api/requests/"+req.ID+"/reject", "bob", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_resolved", decode[handler.ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodGet, "/api/requests/"+req.ID, "carol", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/requests/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "alice", "bob")

	w := env.do(t, http.MethodPost, "/api/rooms/"+code+"/join", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[models.RoomView](t, w)
	require.NotNil(t, view.OtherUser)
	assert.Equal(t, "alice", view.OtherUser.UserID)

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/join", "carol", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/presence", "bob", gin.H{"online": false})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/leave", "bob", gin.H{"duration_seconds": 120})
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, env.store.SessionLogs(), 1)

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/end", "carol", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/end", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/end", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/rooms/"+code, "alice", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "room_ended", decode[handler.ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodGet, "/api/rooms/ZZZZZZZZ", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorsAreLocalized(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "alice", "bob")

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/"+code, nil)
	req.Header.Set("Authorization", "Bearer "+env.tokens["carol"])
	req.Header.Set("Accept-Language", "uk-UA,uk;q=0.9")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	resp := decode[handler.ErrorResponse](t, w)
	assert.Equal(t, "not_authorized", resp.Code)
	assert.Equal(t, "Ви не можете це зробити.", resp.Message)
}

func TestLikeEndpoints(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "alice", "bob")

	w := env.do(t, http.MethodPost, "/api/rooms/"+code+"/likes/bob", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.LikeState{HasLiked: true, LikesCount: 1}, decode[models.LikeState](t, w))

	w = env.do(t, http.MethodGet, "/api/rooms/"+code+"/likes/bob", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LikeState{HasLiked: true, LikesCount: 1}, decode[models.LikeState](t, w))

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/likes/bob", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LikeState{}, decode[models.LikeState](t, w))

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/likes/alice", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "self_like", decode[handler.ErrorResponse](t, w).Code)
}

func TestChatEndpoints(t *testing.T) {
	env := newTestEnv(t)
	code := env.createRoom(t, "alice", "bob")

	w := env.do(t, http.MethodPost, "/api/rooms/"+code+"/messages", "alice", gin.H{"text": "Describe a place you visited."})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	msg := decode[models.ChatMessage](t, w)
	assert.Equal(t, "Alice", msg.SenderName)

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/messages", "alice", gin.H{"text": "just for you", "receiver_id": "bob"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/messages", "alice", gin.H{"text": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_message", decode[handler.ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodGet, "/api/rooms/"+code+"/messages?limit=10", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Messages []models.ChatMessage `json:"messages"`
	}](t, w)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, msg.ID, history.Messages[0].ID)

	for _, query := range []string{"?limit=abc", "?offset=-1", "?limit=1.5"} {
		w = env.do(t, http.MethodGet, "/api/rooms/"+code+"/messages"+query, "bob", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, query)
		assert.Equal(t, "invalid_request", decode[handler.ErrorResponse](t, w).Code, query)
	}

	w = env.do(t, http.MethodGet, "/api/rooms/"+code+"/unread", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	counts := decode[models.UnreadCounts](t, w)
	assert.Equal(t, 1, counts.Group)
	assert.Equal(t, 1, counts.Private["alice"])

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/rooms/"+code+"/read", "bob", gin.H{"from_sender_id": "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/rooms/"+code+"/unread", "bob", nil)
	counts = decode[models.UnreadCounts](t, w)
	assert.Zero(t, counts.Group)
	assert.Empty(t, counts.Private)

	w = env.do(t, http.MethodGet, "/api/rooms/"+code+"/messages", "carol", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLinkTelegram(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/me/telegram", "alice", gin.H{"chat_id": 4242})
	require.Equal(t, http.StatusNoContent, w.Code)

	user, err := env.store.GetUserByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 4242, user.TelegramChatID)
}
