// Package event defines the server-pushed events delivered to connected
// clients through their sinks.
package event

import (
	"chat-presence/domain"

	"github.com/google/uuid"
)

type Event interface {
	RoomID() domain.RoomID
	Name() string
}

// MessageBroadcast carries a chat message (user, system, file or private)
// to room subscribers.
type MessageBroadcast struct {
	Message domain.Message `json:"message"`
}

func (e MessageBroadcast) RoomID() domain.RoomID { return e.Message.Room }
func (e MessageBroadcast) Name() string          { return "message" }

// PresenceUpdate carries the refreshed, deduplicated member list of a room.
type PresenceUpdate struct {
	Room    domain.RoomID        `json:"room"`
	Members []domain.Participant `json:"members"`
}

func (e PresenceUpdate) RoomID() domain.RoomID { return e.Room }
func (e PresenceUpdate) Name() string          { return "presence_update" }

// TypingUpdate carries the display names currently typing in a room.
type TypingUpdate struct {
	Room   domain.RoomID `json:"room"`
	Typing []string      `json:"typing"`
}

func (e TypingUpdate) RoomID() domain.RoomID { return e.Room }
func (e TypingUpdate) Name() string          { return "typing_update" }

// ReactionUpdate carries the full reaction tally of a single message after
// an add or remove.
type ReactionUpdate struct {
	Room      domain.RoomID       `json:"room"`
	MessageID uuid.UUID           `json:"message_id"`
	Reactions map[string][]string `json:"reactions"`
}

func (e ReactionUpdate) RoomID() domain.RoomID { return e.Room }
func (e ReactionUpdate) Name() string          { return "reaction_update" }
