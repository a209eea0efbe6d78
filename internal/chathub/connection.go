package chathub

import (
	"context"
	"sort"
	"sync"
	"time"

	"speakroom/backend/internal/config"
	"speakroom/backend/internal/metrics"
	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
)

const (
	connectionBuffer = 64
	maxSeenMessages  = 4096
)

// Connection is one user's live feed of a room's chat. Events delivers new
// messages and typing indicators for the user; the user's own messages and
// private messages between other users are filtered out, as are duplicates.
// The Events channel stays the same across Reconnect and is closed by
// Disconnect.
type Connection struct {
	RoomCode string
	UserID   string

	channel *Channel
	out     chan models.Event
	done    chan struct{}

	mu       sync.Mutex
	sub      realtime.Subscription
	stop     chan struct{}
	pumps    sync.WaitGroup
	seen     map[string]struct{}
	seenList []string
	typing   map[string]models.TypingIndicator
	closed   bool
}

func newConnection(c *Channel, code, userID string) *Connection {
	return &Connection{
		RoomCode: code,
		UserID:   userID,
		channel:  c,
		out:      make(chan models.Event, connectionBuffer),
		done:     make(chan struct{}),
		seen:     make(map[string]struct{}),
		typing:   make(map[string]models.TypingIndicator),
	}
}

func (c *Connection) Events() <-chan models.Event { return c.out }

// subscribe replaces the current subscription with a fresh one.
func (c *Connection) subscribe(ctx context.Context) error {
	sub, err := c.channel.Bus.Subscribe(ctx, realtime.RoomChannel(c.RoomCode))
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Close()
		return ErrConnectionClosed
	}
	old, oldStop := c.sub, c.stop
	stop := make(chan struct{})
	c.sub, c.stop = sub, stop
	c.pumps.Add(1)
	c.mu.Unlock()

	if old != nil {
		close(oldStop)
		old.Close()
	}
	go c.pump(sub, stop)
	return nil
}

func (c *Connection) pump(sub realtime.Subscription, stop chan struct{}) {
	defer c.pumps.Done()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !c.accept(ev) {
				continue
			}
			select {
			case c.out <- ev:
			case <-stop:
				return
			}
		}
	}
}

// accept applies the per-user filters and records what was delivered.
func (c *Connection) accept(ev models.Event) bool {
	switch e := ev.(type) {
	case models.NewMessageEvent:
		msg := e.Message
		if msg.SenderID == c.UserID || !msg.VisibleTo(c.UserID) {
			return false
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.markSeen(msg.ID)

	case models.TypingIndicator:
		if e.UserID == c.UserID {
			return false
		}
		if e.IsPrivate && e.ReceiverID != c.UserID {
			return false
		}
		if e.Expired(c.channel.Now(), c.channel.TypingTTL) {
			return false
		}
		c.mu.Lock()
		if e.IsTyping {
			c.typing[e.UserID] = e
		} else {
			delete(c.typing, e.UserID)
		}
		c.mu.Unlock()
		return true
	}
	return false
}

// markSeen records id and reports whether it was new. Callers hold mu.
func (c *Connection) markSeen(id string) bool {
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	c.seenList = append(c.seenList, id)
	if len(c.seenList) > maxSeenMessages {
		drop := len(c.seenList) - maxSeenMessages
		for _, old := range c.seenList[:drop] {
			delete(c.seen, old)
		}
		c.seenList = append([]string(nil), c.seenList[drop:]...)
	}
	return true
}

// Typing returns the users currently typing to this user at now. Indicators
// older than the typing TTL are dropped even without a stop signal.
func (c *Connection) Typing(now time.Time) []models.TypingIndicator {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.TypingIndicator, 0, len(c.typing))
	for userID, t := range c.typing {
		if t.Expired(now, c.channel.TypingTTL) {
			delete(c.typing, userID)
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Resync loads the newest history page from storage and marks it delivered,
// so that live copies of the same messages are not delivered again.
func (c *Connection) Resync(ctx context.Context) ([]models.ChatMessage, error) {
	msgs, err := c.channel.Recent(ctx, c.RoomCode, c.UserID, config.DefaultHistorySize)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	for _, m := range msgs {
		c.markSeen(m.ID)
	}
	c.mu.Unlock()
	return msgs, nil
}

// Reconnect opens a fresh subscription and resyncs. Calling it repeatedly is
// safe; messages already delivered are not delivered twice.
func (c *Connection) Reconnect(ctx context.Context) ([]models.ChatMessage, error) {
	if _, err := c.channel.Access.CanAccess(ctx, c.RoomCode, c.UserID); err != nil {
		return nil, err
	}
	if err := c.subscribe(ctx); err != nil {
		return nil, err
	}
	return c.Resync(ctx)
}

// Disconnect releases the subscription and closes Events. It is safe to call
// more than once.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub, stop := c.sub, c.stop
	c.mu.Unlock()

	if sub != nil {
		close(stop)
		sub.Close()
	}
	c.pumps.Wait()
	close(c.out)
	close(c.done)
	metrics.ChatConnections.Dec()
}

// Done is closed once the connection is disconnected.
func (c *Connection) Done() <-chan struct{} { return c.done }
