package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"log/slog"

	"chat-presence/contract"
	"chat-presence/domain"
	"chat-presence/domain/event"
	chaterrors "chat-presence/errors"
	"chat-presence/runtime"
	"chat-presence/services"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// A connection that misses one ping round is considered dead.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	maxFrameSize = 8 * 1024

	// Outbound queue depth per connection. A full queue marks the
	// consumer as slow and gets the connection evicted.
	sendBufferSize = 256
)

// Client is one live websocket connection. It is also the connection's
// EventSink: Consume enqueues the marshaled event without ever blocking
// the router.
type Client struct {
	id          string
	participant domain.Participant
	conn        *websocket.Conn
	send        chan []byte
	log         *slog.Logger
	presence    *runtime.Presence
	service     services.IChatService
	validate    *validator.Validate
	closeOnce   sync.Once
}

func newClient(conn *websocket.Conn, participant domain.Participant, log *slog.Logger,
	presence *runtime.Presence, service services.IChatService, validate *validator.Validate) *Client {
	id := uuid.NewString()
	return &Client{
		id:          id,
		participant: participant,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		log:         log.With("conn_id", id, "participant_id", participant.ID),
		presence:    presence,
		service:     service,
		validate:    validate,
	}
}

// ID returns the connection identifier used by the registry.
func (c *Client) ID() string { return c.id }

var _ contract.EventSink = (*Client)(nil)

// Consume hands an event to the write pump. It never waits for the socket:
// when the outbound queue is full the connection is reported slow and the
// router evicts it, so one stalled reader cannot hold a room hostage.
func (c *Client) Consume(_ context.Context, e event.Event) error {
	payload, err := json.Marshal(newEnvelope(e))
	if err != nil {
		return err
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return chaterrors.ErrSlowConsumer
	}
}

// Close shuts the transport down. The send channel is never closed: the
// router may still be enqueueing while we tear down, and an undrained
// buffer simply gets garbage collected with the client. Safe to call from
// the router's evict callback and from the pumps at the same time.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.presence.HandleDisconnect(ctx, c.id)
		c.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("connection closed unexpectedly", "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("malformed frame")
			continue
		}
		if err := c.validate.Struct(frame); err != nil {
			c.sendError("unknown or missing event")
			continue
		}
		c.dispatch(ctx, frame)
	}
}

func (c *Client) dispatch(ctx context.Context, frame Frame) {
	switch frame.Event {
	case "join":
		var p joinPayload
		if !c.decode(frame.Data, &p) {
			return
		}
		if err := c.presence.HandleJoin(ctx, c.id, domain.RoomID(p.Room)); err != nil {
			c.log.Error("join failed", "room", p.Room, "error", err)
			c.sendError("join failed")
		}
	case "leave":
		var p leavePayload
		if !c.decode(frame.Data, &p) {
			return
		}
		c.presence.HandleLeave(ctx, c.id, domain.RoomID(p.Room))
	case "send":
		var p sendPayload
		if !c.decode(frame.Data, &p) {
			return
		}
		if _, err := c.service.Send(ctx, c.id, domain.RoomID(p.Room), p.Content); err != nil {
			c.log.Warn("message rejected", "room", p.Room, "error", err)
			c.sendError(err.Error())
		}
	case "send_private":
		var p privatePayload
		if !c.decode(frame.Data, &p) {
			return
		}
		_, delivered, err := c.service.SendPrivate(ctx, c.id, p.To, p.Content)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		if !delivered {
			c.sendError("recipient is offline")
		}
	case "typing":
		var p typingPayload
		if !c.decode(frame.Data, &p) {
			return
		}
		if err := c.service.Typing(ctx, c.id, domain.RoomID(p.Room), p.IsTyping); err != nil {
			c.log.Debug("typing ignored", "room", p.Room, "error", err)
		}
	case "react":
		var p reactPayload
		if !c.decode(frame.Data, &p) {
			return
		}
		messageID, err := uuid.Parse(p.MessageID)
		if err != nil {
			c.sendError("invalid message id")
			return
		}
		if err := c.service.React(ctx, c.id, domain.RoomID(p.Room), messageID, p.Emoji, p.Add); err != nil {
			c.sendError(err.Error())
		}
	}
}

func (c *Client) decode(raw json.RawMessage, payload any) bool {
	if err := json.Unmarshal(raw, payload); err != nil {
		c.sendError("malformed payload")
		return false
	}
	if err := c.validate.Struct(payload); err != nil {
		c.sendError("invalid payload")
		return false
	}
	return true
}

// sendError reports a rejected command to this connection only.
func (c *Client) sendError(reason string) {
	payload, err := json.Marshal(envelope{Event: "error", Data: errorPayload{Reason: reason}})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		// The queue is full anyway; the router will evict us shortly.
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
