// Package client is the Go SDK for the chat gateway. It speaks the
// websocket frame protocol and surfaces server events as callbacks.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"chat-presence/domain"
	"chat-presence/domain/event"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config carries everything needed to reach a gateway.
type Config struct {
	URL              string // ws://host:port/ws
	Token            string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func DefaultConfig(url, token string) Config {
	return Config{
		URL:              url,
		Token:            token,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

type callbacks struct {
	mu         sync.RWMutex
	onMessage  func(domain.Message)
	onPresence func(event.PresenceUpdate)
	onTyping   func(event.TypingUpdate)
	onReaction func(event.ReactionUpdate)
	onError    func(error)
}

// Client is a single gateway connection. Register callbacks before
// Connect; they run on the read loop goroutine, so keep them short.
type Client struct {
	cfg Config
	log *slog.Logger

	callbacks callbacks

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{}
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	return &Client{cfg: cfg, log: log}
}

func (c *Client) OnMessage(fn func(domain.Message)) {
	c.callbacks.mu.Lock()
	defer c.callbacks.mu.Unlock()
	c.callbacks.onMessage = fn
}

func (c *Client) OnPresence(fn func(event.PresenceUpdate)) {
	c.callbacks.mu.Lock()
	defer c.callbacks.mu.Unlock()
	c.callbacks.onPresence = fn
}

func (c *Client) OnTyping(fn func(event.TypingUpdate)) {
	c.callbacks.mu.Lock()
	defer c.callbacks.mu.Unlock()
	c.callbacks.onTyping = fn
}

func (c *Client) OnReaction(fn func(event.ReactionUpdate)) {
	c.callbacks.mu.Lock()
	defer c.callbacks.mu.Unlock()
	c.callbacks.onReaction = fn
}

// OnError receives server-side rejections and the transport error that
// ended the connection.
func (c *Client) OnError(fn func(error)) {
	c.callbacks.mu.Lock()
	defer c.callbacks.mu.Unlock()
	c.callbacks.onError = fn
}

// Connect dials the gateway and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return errors.New("already connected")
	}
	if c.cfg.URL == "" {
		return errors.New("empty gateway URL")
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL+"?token="+c.cfg.Token, nil)
	if err != nil {
		return fmt.Errorf("gateway dial failed: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})
	go c.readLoop()
	return nil
}

// Done is closed once the read loop exits, whatever the reason.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

func (c *Client) Join(room string) error {
	return c.write("join", map[string]string{"room": room})
}

func (c *Client) Leave(room string) error {
	return c.write("leave", map[string]string{"room": room})
}

func (c *Client) Send(room, content string) error {
	return c.write("send", map[string]string{"room": room, "content": content})
}

func (c *Client) SendPrivate(recipientID, content string) error {
	return c.write("send_private", map[string]string{"to": recipientID, "content": content})
}

func (c *Client) Typing(room string, isTyping bool) error {
	return c.write("typing", map[string]any{"room": room, "is_typing": isTyping})
}

func (c *Client) React(room string, messageID uuid.UUID, emoji string, add bool) error {
	return c.write("react", map[string]any{
		"room":       room,
		"message_id": messageID.String(),
		"emoji":      emoji,
		"add":        add,
	})
}

func (c *Client) write(eventName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(map[string]any{"event": eventName, "data": json.RawMessage(data)})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return errors.New("not connected")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasConnected := c.connected
			c.connected = false
			c.mu.Unlock()
			if wasConnected {
				c.emitError(fmt.Errorf("connection lost: %w", err))
			}
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	var envelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.emitError(fmt.Errorf("malformed frame: %w", err))
		return
	}

	c.callbacks.mu.RLock()
	defer c.callbacks.mu.RUnlock()

	switch envelope.Event {
	case "message":
		var e event.MessageBroadcast
		if err := json.Unmarshal(envelope.Data, &e); err == nil && c.callbacks.onMessage != nil {
			c.callbacks.onMessage(e.Message)
		}
	case "presence_update":
		var e event.PresenceUpdate
		if err := json.Unmarshal(envelope.Data, &e); err == nil && c.callbacks.onPresence != nil {
			c.callbacks.onPresence(e)
		}
	case "typing_update":
		var e event.TypingUpdate
		if err := json.Unmarshal(envelope.Data, &e); err == nil && c.callbacks.onTyping != nil {
			c.callbacks.onTyping(e)
		}
	case "reaction_update":
		var e event.ReactionUpdate
		if err := json.Unmarshal(envelope.Data, &e); err == nil && c.callbacks.onReaction != nil {
			c.callbacks.onReaction(e)
		}
	case "error":
		var payload struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(envelope.Data, &payload)
		if c.callbacks.onError != nil {
			c.callbacks.onError(fmt.Errorf("rejected by server: %s", payload.Reason))
		}
	default:
		c.log.Debug("unknown event ignored", "event", envelope.Event)
	}
}

func (c *Client) emitError(err error) {
	c.callbacks.mu.RLock()
	fn := c.callbacks.onError
	c.callbacks.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
