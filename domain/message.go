// Package domain contains core concepts of the presence system.
// This file defines Message events and related rules.
// Messages are immutable once created, except for their reaction tally.
package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText    MessageType = "text"
	MessageSystem  MessageType = "system"
	MessagePrivate MessageType = "private"
	MessageFile    MessageType = "file"
)

// SystemSenderID marks messages authored by the server itself
// (join/leave announcements).
const SystemSenderID = "system"

// Message represents a chat event. The reaction tally maps an emoji to the
// sorted set of participant IDs who reacted with it.
type Message struct {
	ID        uuid.UUID           `json:"id"`
	Room      RoomID              `json:"room,omitempty"`
	SenderID  string              `json:"sender_id"`
	Sender    string              `json:"sender"`
	To        string              `json:"to,omitempty"`
	Type      MessageType         `json:"type"`
	Content   string              `json:"content"`
	FileURL   string              `json:"file_url,omitempty"`
	FileType  string              `json:"file_type,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// NewSystemMessage builds a server-authored announcement for a room.
func NewSystemMessage(room RoomID, content string) Message {
	return Message{
		ID:        uuid.New(),
		Room:      room,
		SenderID:  SystemSenderID,
		Sender:    SystemSenderID,
		Type:      MessageSystem,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// AddReaction records that participantID reacted with emoji. It reports
// whether the tally changed: reacting twice with the same emoji is a no-op.
func (m *Message) AddReaction(emoji, participantID string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	for _, id := range m.Reactions[emoji] {
		if id == participantID {
			return false
		}
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], participantID)
	sort.Strings(m.Reactions[emoji])
	return true
}

// RemoveReaction is the inverse of AddReaction. The emoji entry disappears
// from the tally once its set becomes empty.
func (m *Message) RemoveReaction(emoji, participantID string) bool {
	ids, ok := m.Reactions[emoji]
	if !ok {
		return false
	}
	for i, id := range ids {
		if id == participantID {
			ids = append(ids[:i], ids[i+1:]...)
			if len(ids) == 0 {
				delete(m.Reactions, emoji)
			} else {
				m.Reactions[emoji] = ids
			}
			return true
		}
	}
	return false
}
