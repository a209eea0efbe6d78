package chathub

import (
	"context"

	"github.com/rs/zerolog"
)

// Hub keeps the set of live clients per room. All bookkeeping happens on the
// Run goroutine; other goroutines talk to it through the channels.
type Hub struct {
	Clients map[string]map[Client]struct{}

	RegisterCh   chan Client
	UnregisterCh chan Client
	countCh      chan countQuery

	Logger zerolog.Logger
}

type countQuery struct {
	roomCode string
	reply    chan int
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		Clients:      make(map[string]map[Client]struct{}),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		countCh:      make(chan countQuery),
		Logger:       logger,
	}
}

// Run serves registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.Logger.Info().Msg("chat hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.Logger.Info().Msg("chat hub stopped")
			return

		case c := <-h.RegisterCh:
			room := h.Clients[c.GetRoomCode()]
			if room == nil {
				room = make(map[Client]struct{})
				h.Clients[c.GetRoomCode()] = room
			}
			room[c] = struct{}{}
			h.Logger.Debug().Str("room_code", c.GetRoomCode()).Str("user_id", c.GetUserID()).Msg("client registered")

		case c := <-h.UnregisterCh:
			h.remove(c)

		case q := <-h.countCh:
			q.reply <- len(h.Clients[q.roomCode])
		}
	}
}

// Register adds c and removes it again once it stops.
func (h *Hub) Register(ctx context.Context, c Client) {
	select {
	case h.RegisterCh <- c:
	case <-ctx.Done():
		return
	}
	go func() {
		<-c.Done()
		select {
		case h.UnregisterCh <- c:
		case <-ctx.Done():
		}
	}()
}

// Count returns the number of live clients in a room.
func (h *Hub) Count(ctx context.Context, roomCode string) int {
	q := countQuery{roomCode: roomCode, reply: make(chan int, 1)}
	select {
	case h.countCh <- q:
		return <-q.reply
	case <-ctx.Done():
		return 0
	}
}

func (h *Hub) remove(c Client) {
	room := h.Clients[c.GetRoomCode()]
	if room == nil {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.Clients, c.GetRoomCode())
	}
	h.Logger.Debug().Str("room_code", c.GetRoomCode()).Str("user_id", c.GetUserID()).Msg("client unregistered")
}

func (h *Hub) closeAll() {
	for code, room := range h.Clients {
		for c := range room {
			c.Close()
		}
		delete(h.Clients, code)
	}
}
