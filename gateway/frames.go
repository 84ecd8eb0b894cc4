// Package gateway is the websocket and HTTP edge of the presence engine.
// It owns frame parsing and validation, connection lifecycle and the
// per-connection outbound queue; everything else is delegated to the
// presence layer and the chat service.
package gateway

import (
	"encoding/json"
	"strings"

	"chat-presence/domain/event"

	"github.com/go-playground/validator/v10"
)

// Frame is the envelope of every inbound client message.
type Frame struct {
	Event string          `json:"event" validate:"required,oneof=join leave send send_private typing react"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	Room string `json:"room" validate:"required,min=1,max=64,roomname"`
}

type leavePayload struct {
	Room string `json:"room" validate:"required,min=1,max=64,roomname"`
}

type sendPayload struct {
	Room    string `json:"room" validate:"required,min=1,max=64,roomname"`
	Content string `json:"content" validate:"required,max=4096"`
}

type privatePayload struct {
	To      string `json:"to" validate:"required,max=128"`
	Content string `json:"content" validate:"required,max=4096"`
}

type typingPayload struct {
	Room     string `json:"room" validate:"required,min=1,max=64,roomname"`
	IsTyping bool   `json:"is_typing"`
}

type reactPayload struct {
	Room      string `json:"room" validate:"required,min=1,max=64,roomname"`
	MessageID string `json:"message_id" validate:"required,uuid4"`
	Emoji     string `json:"emoji" validate:"required,max=16"`
	Add       bool   `json:"add"`
}

// envelope is the outbound counterpart of Frame.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func newEnvelope(e event.Event) envelope {
	return envelope{Event: e.Name(), Data: e}
}

// errorPayload reports a rejected command back to the offending connection
// only; errors are never broadcast.
type errorPayload struct {
	Reason string `json:"reason"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Room names end up inside storage keys, where ':' separates segments.
	_ = v.RegisterValidation("roomname", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return !strings.ContainsAny(name, ": \t\n")
	})
	return v
}
