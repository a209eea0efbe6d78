package chathub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/speaking"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

// Frame kinds sent to websocket clients in addition to realtime event kinds.
const (
	FrameRoomState   = "room_state"
	FrameMessageSent = "message_sent"
	FrameHistory     = "history"
	FrameError       = "error"
)

// Frame types accepted from websocket clients.
const (
	InboundMessage = "message"
	InboundTyping  = "typing"
	InboundResync  = "resync"
)

// InboundFrame is a client-to-server websocket frame.
type InboundFrame struct {
	Type       string             `json:"type"`
	ClientID   string             `json:"client_id,omitempty"`
	Text       string             `json:"text,omitempty"`
	Kind       models.MessageKind `json:"kind,omitempty"`
	ReceiverID string             `json:"receiver_id,omitempty"`
	IsTyping   bool               `json:"is_typing,omitempty"`
}

type outboundFrame struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

type sentPayload struct {
	ClientID string             `json:"client_id,omitempty"`
	Message  models.ChatMessage `json:"message"`
}

type errorPayload struct {
	ClientID string `json:"client_id,omitempty"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// RoomFeed is a stream of room state updates, usually a speaking.RoomWatch.
type RoomFeed interface {
	Updates() <-chan speaking.RoomUpdate
	Close()
}

// WebSocketClient bridges a websocket to a chat Connection and a room feed.
type WebSocketClient struct {
	UserID   string
	UserName string
	RoomCode string

	Conn   *websocket.Conn
	Chat   *Channel
	Feed   *Connection
	Room   RoomFeed
	Logger zerolog.Logger
	// OnClose runs once after the client stops, e.g. to mark the user offline.
	OnClose func()

	send      chan []byte
	sendMu    sync.Mutex
	sendShut  bool
	closeOnce sync.Once
	done      chan struct{}
}

func NewWebSocketClient(conn *websocket.Conn, chat *Channel, feed *Connection, room RoomFeed, userName string, logger zerolog.Logger) *WebSocketClient {
	return &WebSocketClient{
		UserID:   feed.UserID,
		UserName: userName,
		RoomCode: feed.RoomCode,
		Conn:     conn,
		Chat:     chat,
		Feed:     feed,
		Room:     room,
		Logger:   logger.With().Str("room_code", feed.RoomCode).Str("user_id", feed.UserID).Logger(),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *WebSocketClient) GetUserID() string     { return c.UserID }
func (c *WebSocketClient) GetRoomCode() string   { return c.RoomCode }
func (c *WebSocketClient) Done() <-chan struct{} { return c.done }

// Run starts the read, write and forward pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.forward()
	go c.readPump()
}

// Close releases the chat connection and the room feed. The write pump then
// sends a close frame and the socket is torn down.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() {
		c.Feed.Disconnect()
		c.Room.Close()
		c.shutSend()
		if c.OnClose != nil {
			c.OnClose()
		}
		close(c.done)
	})
}

func (c *WebSocketClient) enqueue(data []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendShut {
		return
	}
	select {
	case c.send <- data:
	default:
		c.Logger.Warn().Msg("websocket send buffer full, dropping frame")
	}
}

func (c *WebSocketClient) enqueueFrame(kind string, payload any) {
	data, err := json.Marshal(outboundFrame{Kind: kind, Payload: payload})
	if err != nil {
		c.Logger.Error().Err(err).Str("kind", kind).Msg("failed to encode frame")
		return
	}
	c.enqueue(data)
}

func (c *WebSocketClient) enqueueEvent(ev models.Event) {
	data, err := realtime.Encode(ev)
	if err != nil {
		c.Logger.Error().Err(err).Str("kind", string(ev.Kind())).Msg("failed to encode event")
		return
	}
	c.enqueue(data)
}

func (c *WebSocketClient) shutSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendShut {
		c.sendShut = true
		close(c.send)
	}
}

// forward copies chat events and room updates to the socket. A room ended
// update is the last thing the client receives.
func (c *WebSocketClient) forward() {
	events := c.Feed.Events()
	updates := c.Room.Updates()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				c.shutSend()
				return
			}
			c.enqueueEvent(ev)
		case u, ok := <-updates:
			if !ok {
				c.shutSend()
				return
			}
			if u.Ended != nil {
				c.enqueueEvent(*u.Ended)
				c.shutSend()
				return
			}
			c.enqueueFrame(FrameRoomState, u.View)
		}
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Close()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.Logger.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		c.handle(context.Background(), frame)
	}
}

func (c *WebSocketClient) handle(ctx context.Context, frame InboundFrame) {
	switch frame.Type {
	case InboundMessage:
		msg := models.ChatMessage{
			RoomCode:   c.RoomCode,
			SenderID:   c.UserID,
			SenderName: c.UserName,
			ReceiverID: frame.ReceiverID,
			IsPrivate:  frame.ReceiverID != "",
			Text:       frame.Text,
			Kind:       frame.Kind,
		}
		stored, err := c.Chat.Send(ctx, msg)
		if err != nil {
			c.enqueueFrame(FrameError, errorPayload{ClientID: frame.ClientID, Code: ChatErrorCode(err), Message: err.Error()})
			return
		}
		c.enqueueFrame(FrameMessageSent, sentPayload{ClientID: frame.ClientID, Message: *stored})

	case InboundTyping:
		if err := c.Chat.SendTyping(ctx, c.RoomCode, c.UserID, c.UserName, frame.IsTyping, frame.ReceiverID); err != nil {
			c.Logger.Debug().Err(err).Msg("typing indicator not sent")
		}

	case InboundResync:
		msgs, err := c.Feed.Reconnect(ctx)
		if err != nil {
			c.enqueueFrame(FrameError, errorPayload{Code: ChatErrorCode(err), Message: err.Error()})
			return
		}
		c.enqueueFrame(FrameHistory, msgs)

	default:
		c.Logger.Debug().Str("type", frame.Type).Msg("ignoring unknown frame type")
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ChatErrorCode is speaking.ErrorCode extended with message validation
// failures.
func ChatErrorCode(err error) string {
	if IsValidationError(err) {
		return "invalid_message"
	}
	return speaking.ErrorCode(err)
}
