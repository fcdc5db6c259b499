package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"chat-relay/domain/event"
	"chat-relay/runtime"
)

// Options holds the per-connection tuning knobs, filled from the server
// configuration.
type Options struct {
	SendBufferSize int
	MaxMessageSize int64
	PongWait       time.Duration
	PingInterval   time.Duration
	WriteWait      time.Duration
}

// Client owns one websocket connection. The read pump decodes inbound
// envelopes and drives the lifecycle manager; the write pump drains the
// send channel, which is the single ordered queue behind per-session
// delivery order. Client is the session's event sink: Consume enqueues
// without blocking and reports a full buffer as a delivery failure.
type Client struct {
	log       *slog.Logger
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	lifecycle *runtime.Lifecycle
	opts      Options

	// mu guards closed. The router may still hold this sink for an
	// in-flight fan-out after the disconnect sweep detached it, so the
	// channel close and every enqueue must agree on who won.
	mu     sync.Mutex
	closed bool
}

func NewClient(log *slog.Logger, conn *websocket.Conn, sessionID string,
	lifecycle *runtime.Lifecycle, opts Options) *Client {
	conn.SetReadLimit(opts.MaxMessageSize)
	return &Client{
		log:       log.With("session", sessionID),
		conn:      conn,
		send:      make(chan []byte, opts.SendBufferSize),
		sessionID: sessionID,
		lifecycle: lifecycle,
		opts:      opts,
	}
}

// Consume seals the envelope onto the wire format and enqueues it. A
// full send buffer means the client is too slow: the event is dropped
// rather than blocking the fan-out for everyone else. Consuming into a
// closed client is an error, never a panic: the caller runs in another
// session's goroutine.
func (c *Client) Consume(ctx context.Context, e event.Envelope) error {
	data, err := sonic.Marshal(e)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("session %s already closed", c.sessionID)
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for session %s", c.sessionID)
	}
}

// closeSend marks the client closed and closes the send channel exactly
// once, after which the write pump drains and sends the close frame.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Run starts both pumps and blocks until the connection dies. The
// disconnect sweep runs exactly once, whatever ended the connection.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if err := c.lifecycle.Disconnect(ctx, c.sessionID); err != nil {
			c.log.Error("Disconnect sweep failed", "err", err)
		}
		c.closeSend()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("Connection dropped", "err", err)
			}
			return
		}

		var envelope event.Envelope
		if err := sonic.Unmarshal(raw, &envelope); err != nil {
			c.log.Warn("Malformed envelope ignored", "err", err)
			continue
		}

		if done := c.dispatch(ctx, envelope); done {
			return
		}
	}
}

// dispatch routes one inbound envelope to the lifecycle manager.
// Returning true ends the read pump and triggers the disconnect sweep.
func (c *Client) dispatch(ctx context.Context, envelope event.Envelope) bool {
	switch envelope.Event {
	case event.GoOnline:
		var p event.GoOnlinePayload
		if !c.decode(envelope, &p) {
			return false
		}
		if err := c.lifecycle.Connect(ctx, c.sessionID, p.User, c); err != nil {
			c.log.Warn("Authentication failed, closing", "err", err)
			return true
		}

	case event.JoinChat:
		var p event.JoinChatPayload
		if c.decode(envelope, &p) {
			c.lifecycle.JoinConversation(ctx, c.sessionID, p.Room)
		}

	case event.Typing:
		var p event.TypingPayload
		if c.decode(envelope, &p) {
			c.lifecycle.Typing(ctx, c.sessionID, p)
		}

	case event.StopTyping:
		var p event.StopTypingPayload
		if c.decode(envelope, &p) {
			c.lifecycle.StopTyping(ctx, c.sessionID, p.Room)
		}

	case event.NewMessage:
		var p event.NewMessagePayload
		if c.decode(envelope, &p) {
			c.lifecycle.NewMessage(ctx, c.sessionID, p)
		}

	case event.DeleteConversation:
		var p event.DeleteConversationPayload
		if c.decode(envelope, &p) {
			c.lifecycle.DeleteConversation(ctx, c.sessionID, p)
		}

	case event.JoinRoom:
		var p event.JoinRoomPayload
		if c.decode(envelope, &p) {
			if err := c.lifecycle.JoinRoom(ctx, c.sessionID, p); err != nil {
				c.log.Warn("Room join refused", "room", p.Chatroom.ID, "err", err)
			}
		}

	case event.ByeBye:
		var p event.ByeByePayload
		if c.decode(envelope, &p) {
			c.lifecycle.LeaveRoom(ctx, c.sessionID, p)
		}

	case event.RoomMessage:
		var p event.RoomMessagePayload
		if c.decode(envelope, &p) {
			c.lifecycle.RoomMessage(ctx, c.sessionID, p)
		}

	case event.Disconnecting:
		return true

	default:
		c.log.Warn("Unknown event ignored", "event", envelope.Event)
	}
	return false
}

func (c *Client) decode(envelope event.Envelope, out any) bool {
	if err := sonic.Unmarshal(envelope.Payload, out); err != nil {
		c.log.Warn("Malformed payload ignored", "event", envelope.Event, "err", err)
		return false
	}
	return true
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.log.Debug("Connection close", "err", err)
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("Write failed, stopping pump", "err", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed, stopping pump", "err", err)
				return
			}
		}
	}
}
